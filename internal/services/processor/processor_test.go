package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phambaophuc/image-seo/internal/config"
	"github.com/phambaophuc/image-seo/internal/models"
)

func testProcessor(maxSize int64) *Processor {
	return New(config.UploadConfig{
		MaxFileSize:  maxSize,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
	})
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidate_AcceptsPNG(t *testing.T) {
	p := testProcessor(1 << 20)
	err := p.Validate(models.ImagePayload{Data: pngBytes(t), Filename: "a.png", ContentType: "image/png"})
	assert.NoError(t, err)
}

func TestValidate_RejectsOversize(t *testing.T) {
	p := testProcessor(8)
	err := p.Validate(models.ImagePayload{Data: pngBytes(t), Filename: "a.png"})
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestValidate_RejectsNonImage(t *testing.T) {
	p := testProcessor(1 << 20)
	err := p.Validate(models.ImagePayload{Data: []byte("definitely not an image"), Filename: "a.txt"})
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestValidate_RejectsEmpty(t *testing.T) {
	p := testProcessor(1 << 20)
	err := p.Validate(models.ImagePayload{Filename: "a.png"})
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestValidate_SameFileSameRejection(t *testing.T) {
	p := testProcessor(1 << 20)
	payload := models.ImagePayload{Data: []byte("nope"), Filename: "a.bin"}
	err1 := p.Validate(payload)
	err2 := p.Validate(payload)
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestPrepare_ReencodesPNG(t *testing.T) {
	p := testProcessor(1 << 20)
	data, contentType, err := p.Prepare(models.ImagePayload{Data: pngBytes(t), Filename: "a.png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.NotEmpty(t, data)

	_, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestPrepare_FailsOnGarbage(t *testing.T) {
	p := testProcessor(1 << 20)
	// PNG magic bytes with a truncated body sneaks past sniffing but not decode.
	garbage := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	_, _, err := p.Prepare(models.ImagePayload{Data: garbage, Filename: "a.png"})
	assert.Error(t, err)
}
