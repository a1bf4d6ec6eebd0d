package utils

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectImageType sniffs the content type from the leading bytes.
func DetectImageType(data []byte) string {
	return http.DetectContentType(data)
}

// IsAllowedImageType checks a content type against the configured allow-list.
func IsAllowedImageType(contentType string, allowed []string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	for _, t := range allowed {
		if ct == t {
			return true
		}
	}
	return false
}

// SanitizeFilename strips any path components and characters that would break
// a storage key. An empty result falls back to "image".
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.Trim(name, "._")
	if name == "" {
		return "image"
	}
	return name
}

// BuildStorageKey derives the object key for a processed image. The key is a
// pure function of user, batch and filename so a regeneration of the same
// file lands on the same object.
func BuildStorageKey(userID, batchID, filename string) string {
	return fmt.Sprintf("users/%s/batches/%s/%s", userID, batchID, SanitizeFilename(filename))
}

// ExtensionForType maps an allowed content type to a file extension.
func ExtensionForType(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
