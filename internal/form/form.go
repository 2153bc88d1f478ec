package form

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultContentType is used for file fields without an explicit type.
const DefaultContentType = "application/octet-stream"

// ErrInvalidField is returned for arguments that do not describe a field.
var ErrInvalidField = errors.New("invalid field")

// Kind tells how a field's value is produced
type Kind int

const (
	// Text is a literal text value.
	Text Kind = iota
	// TextFile is a text value read from a file.
	TextFile
	// File is a file part.
	File
)

// Field describes one part of a form
type Field struct {
	Kind        Kind
	Name        string
	Value       string
	Path        string
	Filename    string
	ContentType string
}

// Form is an ordered list of fields
type Form []Field

// Writer receives the parts of a form
type Writer interface {
	WriteField(name, value string) error
	WriteFile(name string, r io.Reader, filename, contentType string) error
}

// Opener opens the files referenced by a form
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Parse parses every argument into a form.
func Parse(args []string) (Form, error) {
	f := make(Form, 0, len(args))
	for _, arg := range args {
		field, err := ParseField(arg)
		if err != nil {
			return nil, err
		}
		f = append(f, field)
	}
	return f, nil
}

// ParseField parses a curl style field argument:
//
//	name=value
//	name=<path
//	name=@path[;type=content/type][;filename=name]
func ParseField(arg string) (Field, error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return Field{}, fmt.Errorf("%w: %q", ErrInvalidField, arg)
	}

	switch {
	case strings.HasPrefix(value, "@"):
		return parseFile(name, value[1:])
	case strings.HasPrefix(value, "<"):
		if len(value) == 1 {
			return Field{}, fmt.Errorf("%w: %q: empty path", ErrInvalidField, arg)
		}
		return Field{Kind: TextFile, Name: name, Path: value[1:]}, nil
	default:
		return Field{Kind: Text, Name: name, Value: value}, nil
	}
}

func parseFile(name, spec string) (Field, error) {
	parts := strings.Split(spec, ";")
	field := Field{
		Kind:        File,
		Name:        name,
		Path:        parts[0],
		ContentType: DefaultContentType,
	}
	if field.Path == "" {
		return Field{}, fmt.Errorf("%w: %q: empty path", ErrInvalidField, name)
	}

	for _, param := range parts[1:] {
		key, value, _ := strings.Cut(param, "=")
		switch strings.TrimSpace(key) {
		case "type":
			field.ContentType = value
		case "filename":
			field.Filename = value
		default:
			return Field{}, fmt.Errorf("%w: %q: unknown parameter %q", ErrInvalidField, name, key)
		}
	}

	return field, nil
}

// Paths returns the files the form reads from, in field order.
func (f Form) Paths() []string {
	var paths []string
	for _, field := range f {
		if field.Kind != Text {
			paths = append(paths, field.Path)
		}
	}
	return paths
}

// Encode writes the form's fields to w in order, reading files through o.
func (f Form) Encode(w Writer, o Opener) error {
	for _, field := range f {
		if err := field.encode(w, o); err != nil {
			return fmt.Errorf("failed to write field %q: %w", field.Name, err)
		}
	}
	return nil
}

func (field Field) encode(w Writer, o Opener) error {
	switch field.Kind {
	case Text:
		return w.WriteField(field.Name, field.Value)
	case TextFile:
		file, err := o.Open(field.Path)
		if err != nil {
			return err
		}
		defer file.Close()
		return w.WriteFile(field.Name, file, "", "")
	case File:
		file, err := o.Open(field.Path)
		if err != nil {
			return err
		}
		defer file.Close()
		return w.WriteFile(field.Name, file, field.filename(), field.ContentType)
	}
	return fmt.Errorf("%w: unknown kind %d", ErrInvalidField, field.Kind)
}

// filename returns the explicit filename or the last element of the path,
// normalized to NFC.
func (field Field) filename() string {
	name := field.Filename
	if name == "" {
		name = filepath.Base(field.Path)
	}
	return norm.NFC.String(name)
}
