package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Local writes objects under a directory and serves them back over HTTP.
type Local struct {
	dir        string
	publicBase string
	limits     Limits
}

func NewLocal(dir, publicBase string, limits Limits) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	return &Local{dir: dir, publicBase: strings.TrimRight(publicBase, "/"), limits: limits}, nil
}

func (l *Local) Put(ctx context.Context, obj Object) (string, error) {
	if _, err := l.limits.Check(obj); err != nil {
		return "", err
	}
	target, err := l.path(obj.Key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	// O_EXCL: keys are unique, an existing file means a key collision.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(obj.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return l.publicBase + "/" + obj.Key, nil
}

// Handler serves stored objects at GET <prefix>{key...}.
func (l *Local) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, err := l.path(r.PathValue("key"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Disposition", "attachment")
		http.ServeFile(w, r, target)
	})
}

func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", errors.New("invalid object key")
	}
	return filepath.Join(l.dir, clean), nil
}
