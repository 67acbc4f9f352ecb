package execution

import (
	"math"

	log "github.com/sirupsen/logrus"

	"tuplestore/dberr"
	"tuplestore/types"
)

// NoGrouping is the sentinel gfield value meaning "aggregate over the whole
// input, not per group".
const NoGrouping = -1

// AggOp is the aggregation operator applied to each group.
type AggOp int

const (
	Min AggOp = iota
	Max
	Sum
	Avg
	Count
)

func (op AggOp) String() string {
	switch op {
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Count:
		return "COUNT"
	default:
		return "UNKNOWN"
	}
}

// groupKey is the string form of a group's Field value, used as a map key
// since types.Field isn't itself comparable across concrete types.
// NoGrouping uses the empty string as its sole key.
type groupKey string

func keyOf(f types.Field) groupKey {
	if f == nil {
		return ""
	}
	return groupKey(f.String())
}

// Aggregator merges tuples into per-group running state and produces the
// final result rows.
type Aggregator interface {
	MergeTupleIntoGroup(t *types.Tuple) error
	Iterator() OpIterator
}

// IntegerAggregator supports MIN, MAX, SUM, AVG, and COUNT over an INT
// field.
type IntegerAggregator struct {
	gbField     int
	gbFieldType types.Type
	hasGrouping bool
	aField      int
	op          AggOp

	aggregate map[groupKey]int64
	count     map[groupKey]int64
	groupVal  map[groupKey]types.Field
}

// NewIntegerAggregator builds an aggregator over field aField using op,
// grouped by gbField (or NoGrouping). gbFieldType is ignored when there is
// no grouping.
func NewIntegerAggregator(gbField int, gbFieldType types.Type, aField int, op AggOp) *IntegerAggregator {
	return &IntegerAggregator{
		gbField:     gbField,
		gbFieldType: gbFieldType,
		hasGrouping: gbField != NoGrouping,
		aField:      aField,
		op:          op,
		aggregate:   make(map[groupKey]int64),
		count:       make(map[groupKey]int64),
		groupVal:    make(map[groupKey]types.Field),
	}
}

func (a *IntegerAggregator) initialValue() int64 {
	switch a.op {
	case Min:
		return math.MaxInt64
	case Max:
		return math.MinInt64
	default:
		return 0
	}
}

func (a *IntegerAggregator) MergeTupleIntoGroup(t *types.Tuple) error {
	var group types.Field
	if a.hasGrouping {
		f, err := t.Field(a.gbField)
		if err != nil {
			return err
		}
		group = f
	}
	af, err := t.Field(a.aField)
	if err != nil {
		return err
	}
	intField, ok := af.(types.IntField)
	if !ok {
		return dberr.Wrap(dberr.ErrSchemaMismatch, "integer aggregator requires an int field")
	}
	value := int64(intField.Value)

	key := keyOf(group)
	if _, ok := a.aggregate[key]; !ok {
		a.aggregate[key] = a.initialValue()
		a.groupVal[key] = group
	}
	a.count[key]++

	switch a.op {
	case Count:
		a.aggregate[key]++
	case Sum, Avg:
		a.aggregate[key] += value
	case Min:
		if value < a.aggregate[key] {
			a.aggregate[key] = value
		}
	case Max:
		if value > a.aggregate[key] {
			a.aggregate[key] = value
		}
	}
	return nil
}

func (a *IntegerAggregator) result(key groupKey) int32 {
	if a.op == Avg {
		return int32(a.aggregate[key] / a.count[key])
	}
	return int32(a.aggregate[key])
}

// emittable reports whether a group with zero merged tuples still yields a
// result row: COUNT and SUM report 0 for an empty group, MIN/MAX/AVG yield no
// row since they have no well-defined value.
func (a *IntegerAggregator) emittable(key groupKey) bool {
	if a.count[key] > 0 {
		return true
	}
	if a.op == Count || a.op == Sum {
		return true
	}
	log.WithFields(log.Fields{"op": a.op, "group": key}).Debug("execution: empty group produced no row")
	return false
}

// Iterator returns a materialized-result iterator over the aggregator's
// current state. Iteration order across groups is unspecified. The rows are
// materialized when Iterator is called, so rewinding the returned iterator
// replays the same order; Go randomizes map iteration, so separate calls may
// order the groups differently.
func (a *IntegerAggregator) Iterator() OpIterator {
	var desc *types.TupleDesc
	rows := make([]*types.Tuple, 0, len(a.aggregate))

	if !a.hasGrouping {
		desc, _ = types.NewTupleDesc([]types.Type{types.IntType}, nil)
		if a.emittable("") {
			tup := types.NewTuple(desc)
			_ = tup.SetField(0, types.NewIntField(a.result("")))
			rows = append(rows, tup)
		}
	} else {
		desc, _ = types.NewTupleDesc([]types.Type{a.gbFieldType, types.IntType}, nil)
		for key, group := range a.groupVal {
			if !a.emittable(key) {
				continue
			}
			tup := types.NewTuple(desc)
			_ = tup.SetField(0, group)
			_ = tup.SetField(1, types.NewIntField(a.result(key)))
			rows = append(rows, tup)
		}
	}
	return newTupleIterator(desc, rows)
}

// StringAggregator supports COUNT only over a STRING field; merging with
// any other operator is an error.
type StringAggregator struct {
	gbField     int
	gbFieldType types.Type
	hasGrouping bool
	aField      int
	op          AggOp

	count    map[groupKey]int64
	groupVal map[groupKey]types.Field
}

// NewStringAggregator builds a COUNT-only aggregator over field aField,
// grouped by gbField (or NoGrouping). Returns an error if op is not Count.
func NewStringAggregator(gbField int, gbFieldType types.Type, aField int, op AggOp) (*StringAggregator, error) {
	if op != Count {
		return nil, dberr.Wrapf(dberr.ErrUnsupportedOperation, "string aggregator supports only COUNT, got %s", op)
	}
	return &StringAggregator{
		gbField:     gbField,
		gbFieldType: gbFieldType,
		hasGrouping: gbField != NoGrouping,
		aField:      aField,
		op:          op,
		count:       make(map[groupKey]int64),
		groupVal:    make(map[groupKey]types.Field),
	}, nil
}

func (a *StringAggregator) MergeTupleIntoGroup(t *types.Tuple) error {
	var group types.Field
	if a.hasGrouping {
		f, err := t.Field(a.gbField)
		if err != nil {
			return err
		}
		group = f
	}
	if _, err := t.Field(a.aField); err != nil {
		return err
	}
	key := keyOf(group)
	if _, ok := a.groupVal[key]; !ok {
		a.groupVal[key] = group
	}
	a.count[key]++
	return nil
}

func (a *StringAggregator) Iterator() OpIterator {
	var desc *types.TupleDesc
	rows := make([]*types.Tuple, 0, len(a.count))

	if !a.hasGrouping {
		desc, _ = types.NewTupleDesc([]types.Type{types.IntType}, nil)
		tup := types.NewTuple(desc)
		_ = tup.SetField(0, types.NewIntField(int32(a.count[""])))
		rows = append(rows, tup)
	} else {
		desc, _ = types.NewTupleDesc([]types.Type{a.gbFieldType, types.IntType}, nil)
		for key, group := range a.groupVal {
			tup := types.NewTuple(desc)
			_ = tup.SetField(0, group)
			_ = tup.SetField(1, types.NewIntField(int32(a.count[key])))
			rows = append(rows, tup)
		}
	}
	return newTupleIterator(desc, rows)
}
