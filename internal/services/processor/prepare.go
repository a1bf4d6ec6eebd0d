package processor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/phambaophuc/image-seo/internal/models"
	"github.com/phambaophuc/image-seo/pkg/utils"
)

// Prepare produces the storable bytes for a validated image: jpeg and png are
// decoded with EXIF auto-orientation applied and re-encoded through a staging
// file; webp passes through untouched since imaging cannot re-encode it. The
// staging file is removed on every path. Returns the bytes and the content
// type they should be stored under.
func (p *Processor) Prepare(payload models.ImagePayload) ([]byte, string, error) {
	sniffed := utils.DetectImageType(payload.Data)
	if strings.Contains(sniffed, "webp") {
		return payload.Data, "image/webp", nil
	}

	img, err := imaging.Decode(bytes.NewReader(payload.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	ext := utils.ExtensionForType(sniffed)
	staging := filepath.Join(os.TempDir(), "seo-staging-"+uuid.New().String()+ext)
	defer os.Remove(staging)

	if err := imaging.Save(img, staging, imaging.JPEGQuality(90)); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}

	data, err := os.ReadFile(staging)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read staged image: %w", err)
	}

	contentType := "image/jpeg"
	if ext == ".png" {
		contentType = "image/png"
	}
	return data, contentType, nil
}
