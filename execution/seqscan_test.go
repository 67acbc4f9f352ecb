package execution

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tuplestore/bufferpool"
	"tuplestore/catalog"
	"tuplestore/storage/heapfile"
	"tuplestore/transaction"
	"tuplestore/types"
)

func testSchema(t *testing.T) *types.TupleDesc {
	t.Helper()
	d, err := types.NewTupleDesc([]types.Type{types.IntType, types.StringType}, []string{"id", "name"})
	require.NoError(t, err)
	return d
}

func newScanFixture(t *testing.T) (*bufferpool.BufferPool, *catalog.Catalog, *heapfile.HeapFile) {
	t.Helper()
	cat := catalog.New()
	desc := testSchema(t)
	hf, err := heapfile.Open(filepath.Join(t.TempDir(), "widgets.dat"), desc, 4096)
	require.NoError(t, err)
	cat.AddTable(hf, "widgets", "id")

	bp, err := bufferpool.New(bufferpool.Config{PageSize: 4096, NumPages: 10}, cat)
	require.NoError(t, err)
	return bp, cat, hf
}

func drain(t *testing.T, it OpIterator) []*types.Tuple {
	t.Helper()
	var rows []*types.Tuple
	for {
		has, err := it.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tup, err := it.Next()
		require.NoError(t, err)
		rows = append(rows, tup)
	}
	return rows
}

func TestSeqScanAliasesSchema(t *testing.T) {
	bp, cat, hf := newScanFixture(t)
	tid := transaction.NewID()

	scan, err := NewSeqScan(bp, cat, tid, hf.ID(), "w")
	require.NoError(t, err)

	name0, err := scan.Schema().FieldName(0)
	require.NoError(t, err)
	require.Equal(t, "w.id", name0)
	name1, err := scan.Schema().FieldName(1)
	require.NoError(t, err)
	require.Equal(t, "w.name", name1)
	require.Equal(t, "w", scan.Alias())
	require.Equal(t, "widgets", scan.TableName(cat))
}

// S1 -- insert then scan reads tuples back in insertion order.
func TestSeqScanReadsInsertedRows(t *testing.T) {
	bp, cat, hf := newScanFixture(t)
	insertTid := transaction.NewID()

	for i, name := range []string{"a", "b", "c"} {
		tup := types.NewTuple(hf.Schema())
		require.NoError(t, tup.SetField(0, types.NewIntField(int32(i))))
		require.NoError(t, tup.SetField(1, types.NewStringField(name)))
		require.NoError(t, bp.InsertTuple(insertTid, hf.ID(), tup))
	}
	require.NoError(t, bp.TransactionComplete(insertTid, true))

	scanTid := transaction.NewID()
	scan, err := NewSeqScan(bp, cat, scanTid, hf.ID(), "w")
	require.NoError(t, err)
	require.NoError(t, scan.Open())
	defer scan.Close()

	rows := drain(t, scan)
	require.Len(t, rows, 3)
	for i, row := range rows {
		f0, _ := row.Field(0)
		require.Equal(t, int32(i), f0.(types.IntField).Value)
	}
}

func TestSeqScanOperationsRequireOpen(t *testing.T) {
	bp, cat, hf := newScanFixture(t)
	tid := transaction.NewID()
	scan, err := NewSeqScan(bp, cat, tid, hf.ID(), "w")
	require.NoError(t, err)

	_, err = scan.HasNext()
	require.Error(t, err)
	_, err = scan.Next()
	require.Error(t, err)
	require.Error(t, scan.Rewind())
}

func TestSeqScanRewind(t *testing.T) {
	bp, cat, hf := newScanFixture(t)
	insertTid := transaction.NewID()
	tup := types.NewTuple(hf.Schema())
	require.NoError(t, tup.SetField(0, types.NewIntField(1)))
	require.NoError(t, tup.SetField(1, types.NewStringField("a")))
	require.NoError(t, bp.InsertTuple(insertTid, hf.ID(), tup))
	require.NoError(t, bp.TransactionComplete(insertTid, true))

	scanTid := transaction.NewID()
	scan, err := NewSeqScan(bp, cat, scanTid, hf.ID(), "w")
	require.NoError(t, err)
	require.NoError(t, scan.Open())
	defer scan.Close()

	first := drain(t, scan)
	require.Len(t, first, 1)

	require.NoError(t, scan.Rewind())
	second := drain(t, scan)
	require.Len(t, second, 1)
}
