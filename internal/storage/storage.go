// Package storage publishes generated images where the approval channel and
// the publishing tools can reach them.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// Publisher stores data under key and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ExtensionFor maps an image content type to the file extension used in keys.
func ExtensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + path.Clean("/" + key)[1:]
}

// cleanKey turns key into a slash separated relative path with no
// parent references.
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
