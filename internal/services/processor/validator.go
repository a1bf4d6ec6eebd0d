// Package processor validates submitted images and prepares the storable
// bytes. Validation happens before the generator or the ledger is touched, so
// a rejected file never costs a token or a model call.
package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/phambaophuc/image-seo/internal/config"
	"github.com/phambaophuc/image-seo/internal/models"
	"github.com/phambaophuc/image-seo/pkg/utils"
)

var ErrInvalidFile = errors.New("invalid file")

type Processor struct {
	maxFileSize  int64
	allowedTypes []string
}

func New(cfg config.UploadConfig) *Processor {
	return &Processor{
		maxFileSize:  cfg.MaxFileSize,
		allowedTypes: cfg.AllowedTypes,
	}
}

// Validate checks size, content type and decodability. The declared MIME type
// is advisory; the sniffed type decides.
func (p *Processor) Validate(payload models.ImagePayload) error {
	if len(payload.Data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidFile)
	}
	if int64(len(payload.Data)) > p.maxFileSize {
		return fmt.Errorf("%w: size %d exceeds maximum %d", ErrInvalidFile, len(payload.Data), p.maxFileSize)
	}

	sniffed := utils.DetectImageType(payload.Data)
	if !utils.IsAllowedImageType(sniffed, p.allowedTypes) {
		return fmt.Errorf("%w: unsupported content type %s", ErrInvalidFile, sniffed)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(payload.Data)); err != nil {
		return fmt.Errorf("%w: undecodable image: %v", ErrInvalidFile, err)
	}

	return nil
}
