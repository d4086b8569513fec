package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// File is a staged upload. It can be opened repeatedly so a transient
// failure can be retried without the client re-sending the bytes.
type File struct {
	Name        string
	ContentType string
	Size        int64

	open    func() (io.ReadCloser, error)
	cleanup func() error
	once    sync.Once
}

// NewBytesFile stages an in-memory payload.
func NewBytesFile(name, contentType string, data []byte) *File {
	return &File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// StageReader copies r into a temp file under dir. Payloads larger than
// maxBytes are rejected with a validation error and nothing is kept.
func StageReader(r io.Reader, name, dir string, maxBytes int64) (*File, error) {
	tmp, err := os.CreateTemp(dir, "soundmint-upload-*")
	if err != nil {
		return nil, Transient("stage", err)
	}
	path := tmp.Name()

	limit := r
	if maxBytes > 0 {
		limit = io.LimitReader(r, maxBytes+1)
	}
	written, copyErr := io.Copy(tmp, limit)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, Transient("stage", err)
	}
	if maxBytes > 0 && written > maxBytes {
		_ = os.Remove(path)
		return nil, Validation("stage", fmt.Errorf("file exceeds %d bytes", maxBytes))
	}

	f := &File{
		Name: name,
		Size: written,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
		cleanup: func() error {
			err := os.Remove(path)
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		},
	}
	if err := f.detectType(); err != nil {
		_ = f.Release()
		return nil, err
	}
	return f, nil
}

// Open returns a fresh reader over the staged bytes.
func (f *File) Open() (io.ReadCloser, error) {
	if f == nil || f.open == nil {
		return nil, errors.New("no file staged")
	}
	return f.open()
}

// Release frees any temp storage backing the file. Safe to call repeatedly.
func (f *File) Release() error {
	if f == nil || f.cleanup == nil {
		return nil
	}
	var err error
	f.once.Do(func() { err = f.cleanup() })
	return err
}

func (f *File) detectType() error {
	rc, err := f.Open()
	if err != nil {
		return Transient("detect", err)
	}
	defer rc.Close()
	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return Transient("detect", err)
	}
	f.ContentType = mt.String()
	return nil
}

// Policy bounds what a staged file may contain.
type Policy struct {
	Label        string
	MaxBytes     int64
	AllowedTypes []string
}

var (
	AudioTypes = []string{"audio/mpeg", "audio/wav", "audio/x-wav", "audio/flac", "audio/ogg", "audio/aac", "audio/x-m4a", "audio/mp4"}
	ImageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}
)

// Check validates f against p. Violations are validation errors so the
// caller knows re-selecting the file is required.
func (p Policy) Check(f *File) error {
	if f == nil || f.open == nil {
		return Validation("check", errors.New("no file staged"))
	}
	if f.Size == 0 {
		return Validation("check", fmt.Errorf("%s file is empty", p.Label))
	}
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return Validation("check", fmt.Errorf("%s file exceeds %d MB", p.Label, p.MaxBytes>>20))
	}
	if len(p.AllowedTypes) == 0 {
		return nil
	}
	if f.ContentType == "" {
		if err := f.detectType(); err != nil {
			return err
		}
	}
	if !p.allows(f.ContentType) {
		return Validation("check", fmt.Errorf("%s file type %q not supported", p.Label, f.ContentType))
	}
	return nil
}

func (p Policy) allows(contentType string) bool {
	mt := mimetype.Lookup(contentType)
	for ; mt != nil; mt = mt.Parent() {
		for _, allowed := range p.AllowedTypes {
			if mt.Is(allowed) {
				return true
			}
		}
	}
	clean := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, allowed := range p.AllowedTypes {
		if clean == allowed {
			return true
		}
	}
	return false
}
