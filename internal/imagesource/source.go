// Package imagesource loads images for the recognizer from disk or over HTTP.
package imagesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/facerec/internal/facerec"
)

// MaxImageSize caps the number of bytes read for a single image.
const MaxImageSize = 50 << 20

// FromBytes validates an in-memory payload, such as an upload.
func FromBytes(ref string, data []byte) (*facerec.Image, error) {
	return facerec.NewImage(ref, data)
}

// File reads images from the local filesystem. Relative references are resolved against Root.
type File struct {
	Root string
}

// Load implements facerec.ImageSource.
func (f File) Load(ctx context.Context, ref string) (*facerec.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: err}
	}

	path := strings.TrimPrefix(ref, "file://")
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: err}
	}
	defer fh.Close()

	data, err := io.ReadAll(io.LimitReader(fh, MaxImageSize))
	if err != nil {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: err}
	}
	return facerec.NewImage(ref, data)
}

// HTTP fetches images from http and https URLs.
type HTTP struct {
	Client *http.Client
}

// Load implements facerec.ImageSource.
func (h HTTP) Load(ctx context.Context, ref string) (*facerec.Image, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize))
	if err != nil {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: err}
	}
	return facerec.NewImage(ref, data)
}

// Router dispatches references to a source by URL scheme.
// References without a scheme go to the "file" source.
type Router map[string]facerec.ImageSource

// Default returns a router serving local files under root and http(s) URLs.
func Default(root string, client *http.Client) Router {
	web := HTTP{Client: client}
	return Router{
		"file":  File{Root: root},
		"http":  web,
		"https": web,
	}
}

// Load implements facerec.ImageSource.
func (r Router) Load(ctx context.Context, ref string) (*facerec.Image, error) {
	scheme := "file"
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		scheme = strings.ToLower(u.Scheme)
	}
	src, ok := r[scheme]
	if !ok {
		return nil, &facerec.ImageLoadError{Ref: ref, Err: fmt.Errorf("no image source for scheme %q", scheme)}
	}
	return src.Load(ctx, ref)
}
