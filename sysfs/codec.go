package sysfs

import (
	"strconv"

	"github.com/pkg/errors"
)

// Codec converts between a typed value and the text the kernel driver accepts
type Codec[T any] interface {
	Encode(value T) (string, error)
	Decode(text string) (T, error)
}

type boolCodec struct{}

// BoolCodec uses the "0"/"1" convention of sysfs flags
var BoolCodec Codec[bool] = boolCodec{}

func (boolCodec) Encode(value bool) (string, error) {
	if value {
		return "1", nil
	}
	return "0", nil
}

func (boolCodec) Decode(text string) (bool, error) {
	switch text {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, errors.Errorf("%q is not a boolean", text)
}

type uintCodec struct{}

// UintCodec reads and writes unsigned decimal integers
var UintCodec Codec[uint64] = uintCodec{}

func (uintCodec) Encode(value uint64) (string, error) {
	return strconv.FormatUint(value, 10), nil
}

func (uintCodec) Decode(text string) (uint64, error) {
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, errors.Errorf("%q is not an unsigned integer", text)
	}
	return v, nil
}

type intCodec struct{}

// IntCodec reads and writes signed decimal integers
var IntCodec Codec[int64] = intCodec{}

func (intCodec) Encode(value int64) (string, error) {
	return strconv.FormatInt(value, 10), nil
}

func (intCodec) Decode(text string) (int64, error) {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errors.Errorf("%q is not an integer", text)
	}
	return v, nil
}

type enumCodec[T ~string] struct {
	values []T
}

// EnumCodec accepts exactly the listed words in both directions
func EnumCodec[T ~string](values ...T) Codec[T] {
	return enumCodec[T]{values: values}
}

func (c enumCodec[T]) valid(value T) bool {
	for _, v := range c.values {
		if v == value {
			return true
		}
	}
	return false
}

func (c enumCodec[T]) Encode(value T) (string, error) {
	if !c.valid(value) {
		return "", errors.Errorf("%q is not one of %q", string(value), c.values)
	}
	return string(value), nil
}

func (c enumCodec[T]) Decode(text string) (T, error) {
	value := T(text)
	if !c.valid(value) {
		var zero T
		return zero, errors.Errorf("%q is not one of %q", text, c.values)
	}
	return value, nil
}
