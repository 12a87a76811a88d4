// Package download delivers generated files (exports, templates) to their
// destination: the browser, an archive store, or both.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/JonMunkholm/staffgrid/internal/blob"
)

// Sink accepts one generated file.
type Sink interface {
	Download(ctx context.Context, fileName, mimeType string, payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, fileName, mimeType string, payload []byte) error

func (f SinkFunc) Download(ctx context.Context, fileName, mimeType string, payload []byte) error {
	return f(ctx, fileName, mimeType, payload)
}

// HTTP writes the payload as an attachment response.
type HTTP struct {
	W http.ResponseWriter
}

func (h HTTP) Download(_ context.Context, fileName, mimeType string, payload []byte) error {
	hdr := h.W.Header()
	hdr.Set("Content-Type", mimeType)
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	hdr.Set("Content-Length", strconv.Itoa(len(payload)))
	hdr.Set("Cache-Control", "no-store")
	h.W.WriteHeader(http.StatusOK)
	if _, err := h.W.Write(payload); err != nil {
		return fmt.Errorf("write %s: %w", fileName, err)
	}
	return nil
}

// Archive keeps a copy of every download in a blob store under
// <Prefix><yyyy>/<mm>/<timestamp>-<fileName>.
type Archive struct {
	Store  blob.Store
	Prefix string
	Now    func() time.Time
}

// Key returns the object key a file downloaded at t is stored under.
func (a *Archive) Key(fileName string, t time.Time) string {
	t = t.UTC()
	return a.Prefix + path.Join(t.Format("2006/01"), t.Format("20060102T150405.000000000Z")+"-"+path.Base(fileName))
}

func (a *Archive) Download(ctx context.Context, fileName, mimeType string, payload []byte) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	key := a.Key(fileName, now())
	_, err := a.Store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: mimeType,
		Metadata:    map[string]string{"filename": fileName},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", fileName, err)
	}
	slog.Debug("download archived", "key", key, "bytes", len(payload))
	return nil
}

// Tee delivers to every sink in order. All sinks are attempted; the errors
// of those that failed are joined.
type Tee []Sink

func (t Tee) Download(ctx context.Context, fileName, mimeType string, payload []byte) error {
	var errs []error
	for _, s := range t {
		if err := s.Download(ctx, fileName, mimeType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
