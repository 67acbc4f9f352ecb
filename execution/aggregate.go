package execution

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"tuplestore/dberr"
	"tuplestore/types"
)

// Aggregate computes one aggregate column over a child operator, optionally
// grouped by a second column. On Open it fully drains the child into an
// Aggregator, then serves the aggregator's result rows.
type Aggregate struct {
	child  OpIterator
	aField int
	gField int
	op     AggOp

	aggregator Aggregator
	results    OpIterator
	schema     *types.TupleDesc
	opened     bool
}

// NewAggregate builds an Aggregate over child, aggregating field aField with
// op, grouped by gField (or NoGrouping). The aggregator implementation
// (Integer or String) is chosen from aField's declared type in child's
// schema.
func NewAggregate(child OpIterator, aField, gField int, op AggOp) (*Aggregate, error) {
	childSchema := child.Schema()
	aFieldType, err := childSchema.FieldType(aField)
	if err != nil {
		return nil, err
	}

	var gbFieldType types.Type
	if gField != NoGrouping {
		gbFieldType, err = childSchema.FieldType(gField)
		if err != nil {
			return nil, err
		}
	}

	var aggregator Aggregator
	if aFieldType == types.IntType {
		aggregator = NewIntegerAggregator(gField, gbFieldType, aField, op)
	} else {
		aggregator, err = NewStringAggregator(gField, gbFieldType, aField, op)
		if err != nil {
			return nil, err
		}
	}

	schema, err := outputSchema(childSchema, aField, gField, op)
	if err != nil {
		return nil, err
	}

	return &Aggregate{
		child:      child,
		aField:     aField,
		gField:     gField,
		op:         op,
		aggregator: aggregator,
		schema:     schema,
	}, nil
}

func outputSchema(childSchema *types.TupleDesc, aField, gField int, op AggOp) (*types.TupleDesc, error) {
	aName, err := childSchema.FieldName(aField)
	if err != nil {
		return nil, err
	}
	aggName := fmt.Sprintf("%s(%s)", op, aName)

	if gField == NoGrouping {
		return types.NewTupleDesc([]types.Type{types.IntType}, []string{aggName})
	}
	gbType, err := childSchema.FieldType(gField)
	if err != nil {
		return nil, err
	}
	gName, err := childSchema.FieldName(gField)
	if err != nil {
		return nil, err
	}
	return types.NewTupleDesc([]types.Type{gbType, types.IntType}, []string{gName, aggName})
}

// GroupField returns the grouping field index in the child's input tuples,
// or NoGrouping.
func (a *Aggregate) GroupField() int {
	return a.gField
}

// GroupFieldName returns the grouping field's name in the output tuples, or
// "" if there is no grouping.
func (a *Aggregate) GroupFieldName() string {
	if a.gField == NoGrouping {
		return ""
	}
	name, _ := a.child.Schema().FieldName(a.gField)
	return name
}

// AggregateField returns the aggregated field's index in the child's input
// tuples.
func (a *Aggregate) AggregateField() int {
	return a.aField
}

// AggregateFieldName returns the aggregated field's name in the child's
// input tuples (the output column is named "OP(name)").
func (a *Aggregate) AggregateFieldName() string {
	name, _ := a.child.Schema().FieldName(a.aField)
	return name
}

func (a *Aggregate) Open() error {
	if err := a.child.Open(); err != nil {
		return err
	}
	var merged int64
	for {
		hasNext, err := a.child.HasNext()
		if err != nil {
			return err
		}
		if !hasNext {
			break
		}
		t, err := a.child.Next()
		if err != nil {
			return err
		}
		if err := a.aggregator.MergeTupleIntoGroup(t); err != nil {
			return err
		}
		merged++
	}
	a.results = a.aggregator.Iterator()
	if err := a.results.Open(); err != nil {
		return err
	}
	a.opened = true
	log.WithFields(log.Fields{"op": a.op, "merged": merged}).Debug("execution: aggregate drained child")
	return nil
}

func (a *Aggregate) HasNext() (bool, error) {
	if !a.opened {
		return false, dberr.Wrap(dberr.ErrIllegalState, "aggregate: not open")
	}
	return a.results.HasNext()
}

func (a *Aggregate) Next() (*types.Tuple, error) {
	if !a.opened {
		return nil, dberr.Wrap(dberr.ErrIllegalState, "aggregate: not open")
	}
	return a.results.Next()
}

func (a *Aggregate) Rewind() error {
	if !a.opened {
		return dberr.Wrap(dberr.ErrIllegalState, "aggregate: not open")
	}
	return a.results.Rewind()
}

func (a *Aggregate) Close() error {
	if !a.opened {
		return nil
	}
	a.opened = false
	if err := a.results.Close(); err != nil {
		return err
	}
	return a.child.Close()
}

func (a *Aggregate) Schema() *types.TupleDesc {
	return a.schema
}
