package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phambaophuc/image-seo/internal/models"
)

// ParseMetadata extracts the metadata object from a model reply. The model is
// asked for bare JSON but replies sometimes arrive wrapped in markdown fences
// or with surrounding prose; both are tolerated. Constraint overruns in the
// reply are clamped rather than rejected.
func ParseMetadata(text string, c models.GenerationConstraints) (*models.ImageMetadata, error) {
	text = stripMarkdownFences(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var md models.ImageMetadata
	if err := json.Unmarshal([]byte(text[start:end+1]), &md); err != nil {
		return nil, fmt.Errorf("malformed metadata JSON: %w", err)
	}

	md.Title = strings.TrimSpace(md.Title)
	md.Description = strings.TrimSpace(md.Description)
	if md.Title == "" {
		return nil, fmt.Errorf("model response missing title")
	}

	clamp(&md, c)
	return &md, nil
}

func clamp(md *models.ImageMetadata, c models.GenerationConstraints) {
	md.Title = truncateRunes(md.Title, c.TitleLength)
	md.Description = truncateRunes(md.Description, c.DescriptionLength)

	keywords := make([]string, 0, len(md.Keywords))
	seen := make(map[string]bool, len(md.Keywords))
	for _, k := range md.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keywords = append(keywords, k)
		if len(keywords) == c.KeywordCount {
			break
		}
	}
	md.Keywords = keywords
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}

func stripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}

	end := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.Join(lines[1:end], "\n")
}
