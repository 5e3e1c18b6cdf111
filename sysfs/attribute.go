package sysfs

import (
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/spf13/afero"
)

// Attribute is one sysfs attribute file. Every access opens and closes the
// file, nothing is cached between calls.
type Attribute[T any] struct {
	fs    afero.Fs
	path  string
	codec Codec[T]
}

// NewAttribute binds a path to a codec
func NewAttribute[T any](fs afero.Fs, path string, codec Codec[T]) Attribute[T] {
	return Attribute[T]{
		fs:    fs,
		path:  path,
		codec: codec,
	}
}

// Path returns the file the attribute maps to
func (a Attribute[T]) Path() string {
	return a.path
}

// Write encodes value and stores it in the attribute. The file is never created.
func (a Attribute[T]) Write(value T) error {
	text, err := a.codec.Encode(value)
	if err != nil {
		return hwerr.New(hwerr.ErrorInvalidConfiguration, "write", a.path, err)
	}

	return writeText(a.fs, a.path, text)
}

// Read loads and decodes the attribute
func (a Attribute[T]) Read() (T, error) {
	var zero T

	text, err := readText(a.fs, a.path)
	if err != nil {
		return zero, err
	}

	value, err := a.codec.Decode(text)
	if err != nil {
		return zero, hwerr.New(hwerr.ErrorParse, "read", a.path, err)
	}

	return value, nil
}

func writeText(fs afero.Fs, path string, text string) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return hwerr.New(hwerr.ErrorIO, "write", path, err)
	}

	_, err = io.WriteString(f, text)
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		return hwerr.New(hwerr.ErrorIO, "write", path, err)
	}

	return nil
}

func readText(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", hwerr.New(hwerr.ErrorIO, "read", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", hwerr.New(hwerr.ErrorIO, "read", path, err)
	}

	return strings.TrimRightFunc(string(data), unicode.IsSpace), nil
}
