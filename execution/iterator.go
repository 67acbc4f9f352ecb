// Package execution implements the pull-based operator protocol and its two
// concrete operators: SeqScan and Aggregate.
package execution

import (
	"tuplestore/types"
)

// OpIterator is the contract every operator in the algebra implements.
// Operations other than Close fail with IllegalState if called before Open
// or after Close. Next called when HasNext is false fails with
// NoSuchElement. An operator's Schema is stable across its lifetime.
type OpIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*types.Tuple, error)
	Rewind() error
	Close() error
	Schema() *types.TupleDesc
}
