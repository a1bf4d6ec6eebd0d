package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/phambaophuc/image-seo/internal/models"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// buildMultipartBody renders the full submission body up front so the total
// byte count is known and progress can be computed exactly.
func buildMultipartBody(files []File, constraints models.GenerationConstraints, batchID string, isRegeneration bool) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"titleLength":        strconv.Itoa(constraints.TitleLength),
		"descriptionLength":  strconv.Itoa(constraints.DescriptionLength),
		"keywordCount":       strconv.Itoa(constraints.KeywordCount),
		"totalExpectedFiles": strconv.Itoa(len(files)),
		"isRegeneration":     strconv.FormatBool(isRegeneration),
	}
	if batchID != "" {
		fields["batchId"] = batchID
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		part, err := createImagePart(w, f)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// createImagePart is CreateFormFile with an honest per-file content type
// instead of application/octet-stream.
func createImagePart(w *multipart.Writer, f File) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="images"; filename="%s"`, quoteEscaper.Replace(f.Name)))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}
