package types

import (
	"strings"

	"tuplestore/dberr"
)

// TDItem is one (type, optional name) pair in a schema.
type TDItem struct {
	FieldType Type
	FieldName string
}

func (i TDItem) String() string {
	return i.FieldType.String() + "(" + i.FieldName + ")"
}

// TupleDesc is an immutable, ordered, non-empty schema. Equality between two
// TupleDescs is by type sequence only -- field names are descriptive and
// never compared.
type TupleDesc struct {
	items []TDItem
}

// NewTupleDesc builds a schema from parallel type/name slices. Names may
// contain empty strings; names may be nil, in which case every field is
// unnamed.
func NewTupleDesc(types []Type, names []string) (*TupleDesc, error) {
	if len(types) == 0 {
		return nil, dberr.Wrap(dberr.ErrSchemaMismatch, "schema must have at least one field")
	}
	if names != nil && len(names) != len(types) {
		return nil, dberr.Wrap(dberr.ErrSchemaMismatch, "type and name slices must have the same length")
	}
	items := make([]TDItem, len(types))
	for i, t := range types {
		name := ""
		if names != nil {
			name = names[i]
		}
		items[i] = TDItem{FieldType: t, FieldName: name}
	}
	return &TupleDesc{items: items}, nil
}

// NumFields returns the number of fields in the schema.
func (d *TupleDesc) NumFields() int {
	return len(d.items)
}

// FieldType returns the type of field i.
func (d *TupleDesc) FieldType(i int) (Type, error) {
	if i < 0 || i >= len(d.items) {
		return 0, dberr.Wrapf(dberr.ErrNoSuchField, "invalid field index %d", i)
	}
	return d.items[i].FieldType, nil
}

// FieldName returns the (possibly empty) name of field i.
func (d *TupleDesc) FieldName(i int) (string, error) {
	if i < 0 || i >= len(d.items) {
		return "", dberr.Wrapf(dberr.ErrNoSuchField, "invalid field index %d", i)
	}
	return d.items[i].FieldName, nil
}

// FieldNameToIndex returns the index of the first field named name.
func (d *TupleDesc) FieldNameToIndex(name string) (int, error) {
	for i, item := range d.items {
		if item.FieldName == name {
			return i, nil
		}
	}
	return 0, dberr.Wrapf(dberr.ErrNoSuchField, "field %q not found", name)
}

// Size returns the total on-disk byte width of a tuple conforming to this
// schema: the sum of each field's fixed width.
func (d *TupleDesc) Size() int {
	total := 0
	for _, item := range d.items {
		total += item.FieldType.Len()
	}
	return total
}

// Equal compares two schemas by type sequence only; field names are
// descriptive and ignored.
func (d *TupleDesc) Equal(other *TupleDesc) bool {
	if other == nil || len(d.items) != len(other.items) {
		return false
	}
	for i, item := range d.items {
		if item.FieldType != other.items[i].FieldType {
			return false
		}
	}
	return true
}

// Merge concatenates two schemas: all of d's fields followed by all of
// other's. Carried over from original_source's TupleDesc.merge for API
// completeness (joins that would consume it are out of scope).
func Merge(d, other *TupleDesc) (*TupleDesc, error) {
	types := make([]Type, 0, len(d.items)+len(other.items))
	names := make([]string, 0, len(d.items)+len(other.items))
	for _, item := range d.items {
		types = append(types, item.FieldType)
		names = append(names, item.FieldName)
	}
	for _, item := range other.items {
		types = append(types, item.FieldType)
		names = append(names, item.FieldName)
	}
	return NewTupleDesc(types, names)
}

func (d *TupleDesc) String() string {
	parts := make([]string, len(d.items))
	for i, item := range d.items {
		parts[i] = item.String()
	}
	return strings.Join(parts, ", ")
}
