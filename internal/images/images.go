// Package images stores uploaded post images on local disk and serves them
// back.
package images

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrUnsupportedMediaType = errors.New("images: unsupported media type")

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
}

// Extension maps an allowed media type to the file extension it is stored
// under.
func Extension(mimeType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", false
	}

	ext, ok := extensions[mediaType]
	return ext, ok
}

type Store struct {
	root string
	now  func() time.Time
}

func NewStore(root string) *Store {
	return &Store{root: root, now: time.Now}
}

func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Root() string {
	return s.root
}

// Ingest validates the media type and writes r under the images root. It
// returns the stored file name, relative to the root. Nothing is written
// for a rejected media type. Names carry a timestamp and a random suffix,
// so equal client names never collide.
func (s *Store) Ingest(name, mimeType string, r io.Reader) (string, error) {
	ext, ok := Extension(mimeType)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mimeType)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s-%d-%s.%s", safeName(name), s.now().UnixMilli(), id.String()[:8], ext)

	if err := os.MkdirAll(s.root, 0o770); err != nil {
		return "", err
	}

	fpath := filepath.Join(s.root, filename)
	f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o660)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(fpath)
		return "", err
	}

	if err := f.Close(); err != nil {
		os.Remove(fpath)
		return "", err
	}

	return filename, nil
}

// Remove deletes a stored file. Removing a missing file is not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// Handler serves stored files by name. Mount it behind http.StripPrefix.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}

		files.ServeHTTP(w, r)
	})
}

// safeName turns a client-supplied file name into a lowercase,
// hyphenated base name without directories or extension.
func safeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Join(strings.Fields(strings.ToLower(base)), "-")

	if base == "" || base == "." || base == ".." || base == "/" {
		return "image"
	}

	return base
}
