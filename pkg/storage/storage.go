// Package storage defines the content-addressed upload surface used by the
// publish pipeline and the staged-file type that feeds it.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ProgressFunc receives upload progress as a percentage in [0,100].
type ProgressFunc func(percent int)

// Result is the outcome of a successful upload.
type Result struct {
	ContentAddress string `json:"content_address"`
	Key            string `json:"key"`
	Size           int64  `json:"size"`
	ContentType    string `json:"content_type"`
}

// Uploader stores a staged file and reports its content address.
type Uploader interface {
	Upload(ctx context.Context, file *File, onProgress ProgressFunc) (Result, error)
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ObjectKey is the bucket key for a content address.
func ObjectKey(contentAddress string) string {
	return "content/" + contentAddress
}

// ContentAddress returns the hex sha256 digest of f's bytes.
func ContentAddress(f *File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", Transient("open", err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", Transient("hash", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ProgressReader wraps r and reports monotonic progress against total bytes.
// Completion (100) is left to the caller once the backend acknowledges.
type ProgressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       int
	mu         sync.Mutex
	onProgress ProgressFunc
}

func NewProgressReader(r io.Reader, total int64, fn ProgressFunc) *ProgressReader {
	return &ProgressReader{r: r, total: total, last: -1, onProgress: fn}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.Advance(int64(n))
	}
	return n, err
}

// Advance records n more bytes transferred.
func (p *ProgressReader) Advance(n int64) {
	if p.onProgress == nil || p.total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read += n
	pct := int(p.read * 99 / p.total)
	if pct > 99 {
		pct = 99
	}
	if pct <= p.last {
		return
	}
	p.last = pct
	p.onProgress(pct)
}

// ErrorKind separates failures worth retrying from bad input.
type ErrorKind string

const (
	KindTransient  ErrorKind = "transient"
	KindValidation ErrorKind = "validation"
)

// Error is the typed failure returned by every Uploader.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage %s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// IsValidation reports whether err is a storage validation failure.
func IsValidation(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindValidation
}
