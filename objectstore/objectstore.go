// Package objectstore keeps uploaded tree photos in a fixed, publicly served
// bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PhotoBucket is the only bucket the catalog writes to.
const PhotoBucket = "tree-photos"

var ErrTooLarge = errors.New("objectstore: object too large")

type Bucket interface {
	// Put stores r under a random name that keeps the extension of
	// originalName and returns the public URL of the object.
	Put(ctx context.Context, originalName string, r io.Reader) (string, error)
}

// Dir is a Bucket on the local filesystem. Objects land in Root/Name and are
// served under URLPrefix/Name.
type Dir struct {
	Root      string
	Name      string
	URLPrefix string
	MaxSize   int64
}

func NewDir(root, urlPrefix string, maxSize int64) *Dir {
	return &Dir{
		Root:      root,
		Name:      PhotoBucket,
		URLPrefix: strings.TrimSuffix(urlPrefix, "/"),
		MaxSize:   maxSize,
	}
}

// Path is the directory holding the bucket's objects.
func (d *Dir) Path() string {
	return filepath.Join(d.Root, d.Name)
}

func objectName(originalName string) string {
	ext := strings.ToLower(path.Ext(filepath.Base(originalName)))
	for _, r := range ext[min(1, len(ext)):] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			ext = ""
			break
		}
	}
	return uuid.NewString() + ext
}

func (d *Dir) Put(ctx context.Context, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Path(), 0o755); err != nil {
		return "", err
	}
	name := objectName(originalName)
	tmp, err := os.CreateTemp(d.Path(), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	src := r
	if d.MaxSize > 0 {
		src = io.LimitReader(r, d.MaxSize+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("objectstore: write %s: %w", name, err)
	}
	if d.MaxSize > 0 && n > d.MaxSize {
		return "", ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.Path(), name)); err != nil {
		return "", err
	}
	return d.URLPrefix + "/" + d.Name + "/" + name, nil
}
