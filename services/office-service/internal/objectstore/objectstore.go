// Package objectstore holds the binary content of shared files. The office service only
// keeps the public URL a store returns.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrTooLarge       = errors.New("file too large")
	ErrTypeNotAllowed = errors.New("file type not allowed")
	ErrEmpty          = errors.New("file is empty")
)

// Object is one upload. Key is unique per upload and safe to use as a path.
type Object struct {
	Key      string
	FileName string
	MimeType string
	Data     []byte
}

type Store interface {
	Put(ctx context.Context, obj Object) (publicURL string, err error)
}

// Limits are enforced by the stores before any bytes are written.
type Limits struct {
	MaxBytes int64
	// Allowed holds exact MIME types or "type/*" prefixes.
	Allowed []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxBytes: 10 << 20,
		Allowed: []string{
			"image/*",
			"application/pdf",
			"text/plain",
			"text/csv",
			"application/zip",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			"application/msword",
			"application/vnd.ms-excel",
		},
	}
}

// Check sniffs the content and returns its detected MIME type (without parameters).
// The declared type is not trusted.
func (l Limits) Check(obj Object) (string, error) {
	if len(obj.Data) == 0 {
		return "", ErrEmpty
	}
	if l.MaxBytes > 0 && int64(len(obj.Data)) > l.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(obj.Data), l.MaxBytes)
	}
	detected := baseType(mimetype.Detect(obj.Data).String())
	if !l.allows(detected) {
		return "", fmt.Errorf("%w: %s", ErrTypeNotAllowed, detected)
	}
	return detected, nil
}

func (l Limits) allows(mt string) bool {
	if len(l.Allowed) == 0 {
		return true
	}
	for _, a := range l.Allowed {
		if prefix, ok := strings.CutSuffix(a, "/*"); ok {
			if strings.HasPrefix(mt, prefix+"/") {
				return true
			}
			continue
		}
		if a == mt {
			return true
		}
	}
	return false
}

func baseType(mt string) string {
	mt, _, _ = strings.Cut(mt, ";")
	return strings.TrimSpace(strings.ToLower(mt))
}

// KeyFor builds the storage key for an upload: <meetingID>/<id><ext>. Only the
// extension of the visitor supplied name is kept.
func KeyFor(meetingID, id, fileName string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(fileName, "\\", "/")))
	if len(ext) > 10 || strings.ContainsAny(ext, "/?#% ") {
		ext = ""
	}
	return meetingID + "/" + id + ext
}
