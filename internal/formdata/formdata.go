// Package formdata writes multipart/form-data documents (RFC 7578) straight
// to an io.Writer, one part at a time.
package formdata

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pavel-fokin/form-data/internal/fs"
)

// ErrFinished is returned by every operation called after Finish.
var ErrFinished = errors.New("formdata: document already finished")

// Opener opens the file behind a path for WritePath.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

type state int

const (
	stateOpen state = iota
	stateFinished
	stateFailed
)

type options struct {
	random   io.Reader
	now      func() time.Time
	boundary string
	opener   Opener
}

// Option configures New.
type Option func(*options)

// WithRand sets the randomness source used to generate the boundary.
func WithRand(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// WithClock sets the clock mixed into the generated boundary.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBoundary uses a fixed boundary instead of generating one.
func WithBoundary(boundary string) Option {
	return func(o *options) { o.boundary = boundary }
}

// WithOpener sets the collaborator WritePath reads files through.
func WithOpener(opener Opener) Option {
	return func(o *options) { o.opener = opener }
}

// FormData is a multipart/form-data document being written to W.
//
// Parts appear in the order they are written. A FormData is not safe for
// concurrent use.
type FormData[W io.Writer] struct {
	w        W
	boundary string
	opener   Opener
	state    state
	err      error
}

// New starts a document on w. The writer is owned by the FormData until
// Finish hands it back.
func New[W io.Writer](w W, opts ...Option) (*FormData[W], error) {
	o := options{
		random: rand.Reader,
		now:    time.Now,
		opener: fs.NewStorage(""),
	}
	for _, opt := range opts {
		opt(&o)
	}

	boundary := o.boundary
	if boundary != "" {
		if err := validateBoundary(boundary); err != nil {
			return nil, err
		}
	} else {
		var err error
		boundary, err = newBoundary(o.random, o.now())
		if err != nil {
			return nil, err
		}
	}

	return &FormData[W]{
		w:        w,
		boundary: boundary,
		opener:   o.opener,
	}, nil
}

// Boundary returns the boundary separating the parts.
func (f *FormData[W]) Boundary() string {
	return f.boundary
}

// ContentType returns the value of the Content-Type header for the document.
func (f *FormData[W]) ContentType() string {
	return "multipart/form-data; boundary=" + f.boundary
}

// WriteField writes a text field.
func (f *FormData[W]) WriteField(name, value string) error {
	if err := f.check(); err != nil {
		return err
	}

	var b bytes.Buffer
	f.header(&b, name, "", "")
	b.WriteString(value)
	b.WriteString("\r\n")
	return f.write(b.Bytes())
}

// WriteFile writes a file field with the content of r. An empty filename
// leaves out the filename parameter and an empty contentType leaves out the
// Content-Type header.
func (f *FormData[W]) WriteFile(name string, r io.Reader, filename, contentType string) error {
	if err := f.check(); err != nil {
		return err
	}

	var b bytes.Buffer
	f.header(&b, name, filename, contentType)
	if err := f.write(b.Bytes()); err != nil {
		return err
	}
	if _, err := io.Copy(f.w, r); err != nil {
		return f.fail(err)
	}
	return f.write([]byte("\r\n"))
}

// WritePath writes a file field with the content of the file at path. The
// filename parameter is the last element of path. Nothing is written when the
// file cannot be opened.
func (f *FormData[W]) WritePath(name, path, contentType string) error {
	if err := f.check(); err != nil {
		return err
	}

	file, err := f.opener.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return f.WriteFile(name, file, baseName(path), contentType)
}

// Finish writes the closing delimiter and returns the writer.
func (f *FormData[W]) Finish() (W, error) {
	var zero W
	if err := f.check(); err != nil {
		return zero, err
	}
	if err := f.write([]byte("--" + f.boundary + "--\r\n")); err != nil {
		return zero, err
	}

	w := f.w
	f.w = zero
	f.state = stateFinished
	return w, nil
}

func (f *FormData[W]) header(b *bytes.Buffer, name, filename, contentType string) {
	b.WriteString("--")
	b.WriteString(f.boundary)
	b.WriteString("\r\nContent-Disposition: form-data; name=\"")
	b.WriteString(escape(name))
	b.WriteString("\"")
	if filename != "" {
		b.WriteString("; filename=\"")
		b.WriteString(escape(filename))
		b.WriteString("\"")
	}
	b.WriteString("\r\n")
	if contentType != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(contentType)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
}

func (f *FormData[W]) check() error {
	switch f.state {
	case stateFinished:
		return ErrFinished
	case stateFailed:
		return f.err
	}
	return nil
}

func (f *FormData[W]) write(p []byte) error {
	if _, err := f.w.Write(p); err != nil {
		return f.fail(err)
	}
	return nil
}

// fail records the first write or read error. The document is incomplete
// from here on and every later call returns err.
func (f *FormData[W]) fail(err error) error {
	f.state = stateFailed
	f.err = err
	return err
}

var quoteEscaper = strings.NewReplacer(
	"\\", "\\\\",
	`"`, "\\\"",
	"\r", "%0D",
	"\n", "%0A",
)

func escape(s string) string {
	return quoteEscaper.Replace(s)
}

func baseName(path string) string {
	name := filepath.Base(path)
	switch name {
	case ".", "..", string(filepath.Separator):
		return ""
	}
	return name
}
