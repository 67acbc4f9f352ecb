package execution

import (
	"tuplestore/dberr"
	"tuplestore/types"
)

// tupleIterator is a materialized-slice OpIterator, used to expose an
// aggregator's already-computed result rows through the same protocol as
// every other operator.
type tupleIterator struct {
	desc   *types.TupleDesc
	rows   []*types.Tuple
	pos    int
	opened bool
}

func newTupleIterator(desc *types.TupleDesc, rows []*types.Tuple) *tupleIterator {
	return &tupleIterator{desc: desc, rows: rows}
}

func (it *tupleIterator) Open() error {
	it.pos = 0
	it.opened = true
	return nil
}

func (it *tupleIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, dberr.Wrap(dberr.ErrIllegalState, "tupleIterator: not open")
	}
	return it.pos < len(it.rows), nil
}

func (it *tupleIterator) Next() (*types.Tuple, error) {
	if !it.opened {
		return nil, dberr.Wrap(dberr.ErrIllegalState, "tupleIterator: not open")
	}
	if it.pos >= len(it.rows) {
		return nil, dberr.Wrap(dberr.ErrNoSuchElement, "tupleIterator: exhausted")
	}
	t := it.rows[it.pos]
	it.pos++
	return t, nil
}

func (it *tupleIterator) Rewind() error {
	if !it.opened {
		return dberr.Wrap(dberr.ErrIllegalState, "tupleIterator: not open")
	}
	it.pos = 0
	return nil
}

func (it *tupleIterator) Close() error {
	it.opened = false
	return nil
}

func (it *tupleIterator) Schema() *types.TupleDesc {
	return it.desc
}
