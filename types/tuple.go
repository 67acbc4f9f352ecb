package types

import (
	"bytes"

	"tuplestore/dberr"
)

// Tuple is a schema plus a value for each field, plus an optional RecordID.
// The schema is fixed at construction; fields may be overwritten by index.
type Tuple struct {
	desc   *TupleDesc
	fields []Field
	rid    *RecordID
}

// NewTuple allocates a tuple with desc's shape and all fields zero-valued.
func NewTuple(desc *TupleDesc) *Tuple {
	fields := make([]Field, desc.NumFields())
	for i := 0; i < desc.NumFields(); i++ {
		t, _ := desc.FieldType(i)
		if t == IntType {
			fields[i] = IntField{}
		} else {
			fields[i] = StringField{}
		}
	}
	return &Tuple{desc: desc, fields: fields}
}

// Desc returns the tuple's schema.
func (t *Tuple) Desc() *TupleDesc {
	return t.desc
}

// Field returns the value at index i.
func (t *Tuple) Field(i int) (Field, error) {
	if i < 0 || i >= len(t.fields) {
		return nil, dberr.Wrapf(dberr.ErrNoSuchField, "invalid field index %d", i)
	}
	return t.fields[i], nil
}

// SetField overwrites the value at index i. The new value's type must match
// the schema's declared type for that field.
func (t *Tuple) SetField(i int, f Field) error {
	if i < 0 || i >= len(t.fields) {
		return dberr.Wrapf(dberr.ErrNoSuchField, "invalid field index %d", i)
	}
	want, _ := t.desc.FieldType(i)
	if f.Type() != want {
		return dberr.Wrapf(dberr.ErrSchemaMismatch, "field %d wants %s, got %s", i, want, f.Type())
	}
	t.fields[i] = f
	return nil
}

// RecordID returns the tuple's storage location, or nil if it was freshly
// constructed and never inserted.
func (t *Tuple) RecordID() *RecordID {
	return t.rid
}

// SetRecordID overwrites the tuple's storage location. Called by HeapPage on
// insert and by HeapPage's iterator on read.
func (t *Tuple) SetRecordID(rid RecordID) {
	t.rid = &rid
}

// WriteTo serializes the tuple's fields, in order, with no separators --
// HeapPage relies on the fixed per-field width to find field boundaries.
func (t *Tuple) WriteTo(buf *bytes.Buffer) error {
	for _, f := range t.fields {
		if err := f.WriteTo(buf); err != nil {
			return dberr.Wrap(err, "write tuple field")
		}
	}
	return nil
}

// ReadTuple parses schemaSize bytes of raw field data into a tuple matching
// desc.
func ReadTuple(desc *TupleDesc, raw []byte) (*Tuple, error) {
	r := bytes.NewReader(raw)
	t := &Tuple{desc: desc, fields: make([]Field, desc.NumFields())}
	for i := 0; i < desc.NumFields(); i++ {
		ft, _ := desc.FieldType(i)
		switch ft {
		case IntType:
			f, err := ReadIntField(r)
			if err != nil {
				return nil, dberr.Wrap(err, "read int field")
			}
			t.fields[i] = f
		case StringType:
			f, err := ReadStringField(r)
			if err != nil {
				return nil, dberr.Wrap(err, "read string field")
			}
			t.fields[i] = f
		}
	}
	return t, nil
}

// Equals compares two tuples by schema and field values; RecordID is
// identity, not value, so it is not part of equality.
func (t *Tuple) Equals(other *Tuple) bool {
	if other == nil || !t.desc.Equal(other.desc) || len(t.fields) != len(other.fields) {
		return false
	}
	for i, f := range t.fields {
		if !f.Equals(other.fields[i]) {
			return false
		}
	}
	return true
}

func (t *Tuple) String() string {
	var buf bytes.Buffer
	buf.WriteByte('(')
	for i, f := range t.fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(f.String())
	}
	buf.WriteByte(')')
	return buf.String()
}
