package types

import (
	"fmt"
	"io"
)

// Field is a single typed value inside a Tuple. IntField and StringField are
// the only two implementations, mirroring the closed Type enumeration.
type Field interface {
	Type() Type
	WriteTo(w io.Writer) error
	String() string
	Equals(other Field) bool
}

// IntField holds a 4-byte two's-complement integer value.
type IntField struct {
	Value int32
}

func NewIntField(v int32) IntField { return IntField{Value: v} }

func (f IntField) Type() Type { return IntType }

func (f IntField) WriteTo(w io.Writer) error { return writeInt(w, f.Value) }

func (f IntField) String() string { return fmt.Sprintf("%d", f.Value) }

func (f IntField) Equals(other Field) bool {
	o, ok := other.(IntField)
	return ok && o.Value == f.Value
}

// ReadIntField reads a field written by IntField.WriteTo.
func ReadIntField(r io.Reader) (IntField, error) {
	v, err := readInt(r)
	if err != nil {
		return IntField{}, err
	}
	return IntField{Value: v}, nil
}

// StringField holds up to StringMaxLen bytes of UTF-8 text.
type StringField struct {
	Value string
}

func NewStringField(v string) StringField {
	if len(v) > StringMaxLen {
		v = v[:StringMaxLen]
	}
	return StringField{Value: v}
}

func (f StringField) Type() Type { return StringType }

func (f StringField) WriteTo(w io.Writer) error { return writeString(w, f.Value) }

func (f StringField) String() string { return f.Value }

func (f StringField) Equals(other Field) bool {
	o, ok := other.(StringField)
	return ok && o.Value == f.Value
}

// ReadStringField reads a field written by StringField.WriteTo.
func ReadStringField(r io.Reader) (StringField, error) {
	v, err := readString(r)
	if err != nil {
		return StringField{}, err
	}
	return StringField{Value: v}, nil
}
