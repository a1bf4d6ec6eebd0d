package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/phambaophuc/image-seo/internal/models"
)

// Upper bounds on the generation constraints. Requests beyond these are
// client errors, not something to silently clamp.
const (
	maxTitleLength       = 200
	maxDescriptionLength = 1000
	maxKeywordCount      = 50
)

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.APIResponse{
		Success: false,
		Message: message,
	})
}

func formInt(c *gin.Context, field string) (int, bool) {
	raw := c.PostForm(field)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseConstraints(c *gin.Context) (models.GenerationConstraints, error) {
	var constraints models.GenerationConstraints

	fields := []struct {
		name string
		dst  *int
		max  int
	}{
		{"titleLength", &constraints.TitleLength, maxTitleLength},
		{"descriptionLength", &constraints.DescriptionLength, maxDescriptionLength},
		{"keywordCount", &constraints.KeywordCount, maxKeywordCount},
	}

	for _, f := range fields {
		n, ok := formInt(c, f.name)
		if !ok || n <= 0 {
			return constraints, fmt.Errorf("%s must be a positive integer", f.name)
		}
		if n > f.max {
			return constraints, fmt.Errorf("%s must be at most %d", f.name, f.max)
		}
		*f.dst = n
	}

	return constraints, nil
}

func readPayloads(files []*multipart.FileHeader) ([]models.ImagePayload, error) {
	payloads := make([]models.ImagePayload, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Filename, err)
		}

		payloads = append(payloads, models.ImagePayload{
			Data:        data,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
		})
	}
	return payloads, nil
}
