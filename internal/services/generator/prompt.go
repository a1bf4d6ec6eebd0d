package generator

import (
	"fmt"

	"github.com/phambaophuc/image-seo/internal/models"
)

const systemPrompt = `You are an SEO specialist for stock photography. ` +
	`Given an image, produce metadata that helps the image rank in search. ` +
	`Respond with a single JSON object and nothing else, using exactly these ` +
	`keys: "title" (string), "description" (string), "keywords" (array of ` +
	`strings). Do not wrap the JSON in markdown fences. Keywords must be ` +
	`single words or short phrases, lowercase, no duplicates.`

// BuildPrompt renders the per-image user prompt from the batch constraints.
func BuildPrompt(c models.GenerationConstraints) string {
	return fmt.Sprintf(
		"Generate SEO metadata for the attached image.\n"+
			"- title: at most %d characters, descriptive, no quotes\n"+
			"- description: at most %d characters, one or two natural sentences\n"+
			"- keywords: exactly %d relevant keywords, most specific first",
		c.TitleLength, c.DescriptionLength, c.KeywordCount)
}
