package types

import (
	"encoding/binary"
	"io"
	"strings"

	"tuplestore/dberr"
)

// Type is the closed enumeration of field types: INT and STRING. Both have a
// fixed on-disk width so HeapPage can compute a schema's total tuple size
// without reading any data.
type Type int

const (
	IntType Type = iota
	StringType
)

const (
	// IntSize is the on-disk width of an INT field: 4 bytes, big-endian,
	// two's complement.
	IntSize = 4

	// StringMaxLen is the maximum number of UTF-8 bytes a STRING field may
	// hold.
	StringMaxLen = 128

	// StringSize is the on-disk width of a STRING field: a 4-byte length
	// prefix followed by StringMaxLen bytes, zero-padded.
	StringSize = 4 + StringMaxLen
)

// Len returns the fixed on-disk byte width of t.
func (t Type) Len() int {
	switch t {
	case IntType:
		return IntSize
	case StringType:
		return StringSize
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	default:
		return "unknown"
	}
}

// ParseType parses the catalog text format's case-insensitive "int"/"string"
// spelling.
func ParseType(s string) (Type, error) {
	switch {
	case strings.EqualFold(s, "int"):
		return IntType, nil
	case strings.EqualFold(s, "string"):
		return StringType, nil
	default:
		return 0, dberr.Wrapf(dberr.ErrSchemaMismatch, "unknown type %q", s)
	}
}

// writeInt writes a big-endian INT field.
func writeInt(w io.Writer, v int32) error {
	var buf [IntSize]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

// readInt reads a big-endian INT field.
func readInt(r io.Reader) (int32, error) {
	var buf [IntSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// writeString writes a STRING field: 4-byte big-endian length prefix
// followed by up to StringMaxLen UTF-8 bytes, zero-padded.
func writeString(w io.Writer, v string) error {
	b := []byte(v)
	if len(b) > StringMaxLen {
		b = b[:StringMaxLen]
	}
	var buf [StringSize]byte
	binary.BigEndian.PutUint32(buf[:4], uint32(len(b)))
	copy(buf[4:], b)
	_, err := w.Write(buf[:])
	return err
}

// readString reads a STRING field written by writeString.
func readString(r io.Reader) (string, error) {
	var buf [StringSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if n > StringMaxLen {
		n = StringMaxLen
	}
	return string(buf[4 : 4+n]), nil
}
