// Package storage uploads profile images to object storage.
package storage

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/codeofclans/internal/apperror"
)

// Object kinds, used as the first key segment.
const (
	KindAvatar = "avatars"
	KindBanner = "banners"
)

// MaxImageSize bounds a single avatar or banner upload.
const MaxImageSize = 5 << 20

// imageExtensions maps every accepted content type to its key extension.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Uploader stores an object and returns the URL clients should use for it.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ObjectKey builds "<kind>/<accountID>/<xid><ext>" where ext follows the
// sniffed contentType. The client's filename never reaches the key. The
// random segment keeps a re-upload from being served stale out of a CDN cache.
func ObjectKey(kind string, accountID int64, contentType string) string {
	return fmt.Sprintf("%s/%d/%s%s", kind, accountID, xid.New().String(), imageExtensions[contentType])
}

// DetectImage sniffs data and returns its content type. field names the form
// field in the validation error.
func DetectImage(field string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperror.ValidationFailed(field, "File is empty")
	}
	if len(data) > MaxImageSize {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("File must be at most %d MB", MaxImageSize>>20))
	}
	ct := http.DetectContentType(data)
	if _, ok := imageExtensions[ct]; !ok {
		return "", apperror.ValidationFailed(field, "Only PNG, JPEG, GIF or WebP images are accepted")
	}
	return ct, nil
}

// Disabled rejects every upload. It is used when no bucket is configured.
type Disabled struct{}

var _ Uploader = Disabled{}

func (Disabled) Upload(context.Context, string, []byte, string) (string, error) {
	return "", apperror.ValidationFailed("file", "File uploads are not configured")
}
