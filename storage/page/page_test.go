package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tuplestore/dberr"
	"tuplestore/transaction"
	"tuplestore/types"
)

func testDesc(t *testing.T) *types.TupleDesc {
	t.Helper()
	d, err := types.NewTupleDesc([]types.Type{types.IntType, types.StringType}, []string{"id", "name"})
	require.NoError(t, err)
	return d
}

func emptyPage(t *testing.T, pageSize int) *HeapPage {
	t.Helper()
	desc := testDesc(t)
	pid := types.PageID{TableID: 1, PageNo: 0}
	raw := make([]byte, pageSize)
	p, err := New(pid, raw, desc, pageSize)
	require.NoError(t, err)
	return p
}

func TestNumSlots(t *testing.T) {
	desc := testDesc(t)
	n := NumSlots(4096, desc)
	require.Greater(t, n, 0)
	// Sanity: adding one more slot's worth of bits must not fit.
	tupleBits := desc.Size()*8 + 1
	require.LessOrEqual(t, n*tupleBits, 4096*8)
	require.Greater(t, (n+1)*tupleBits, 4096*8)
}

func TestInsertAndRead(t *testing.T) {
	p := emptyPage(t, 4096)
	require.Equal(t, p.NumSlotsTotal(), p.GetNumEmptySlots())

	tup := types.NewTuple(testDesc(t))
	require.NoError(t, tup.SetField(0, types.NewIntField(7)))
	require.NoError(t, tup.SetField(1, types.NewStringField("hello")))

	require.NoError(t, p.InsertTuple(tup))
	require.Equal(t, p.NumSlotsTotal()-1, p.GetNumEmptySlots())
	require.NotNil(t, tup.RecordID())
	require.Equal(t, 0, tup.RecordID().Slot)

	it := p.Iterator()
	require.True(t, it.HasNext())
	got, err := it.Next()
	require.NoError(t, err)
	require.True(t, got.Equals(tup))
	require.False(t, it.HasNext())
}

func TestInsertSchemaMismatch(t *testing.T) {
	p := emptyPage(t, 4096)
	other, err := types.NewTupleDesc([]types.Type{types.IntType}, []string{"only"})
	require.NoError(t, err)
	tup := types.NewTuple(other)
	err = p.InsertTuple(tup)
	require.ErrorIs(t, err, dberr.ErrSchemaMismatch)
}

func TestPageFull(t *testing.T) {
	p := emptyPage(t, 4096)
	desc := testDesc(t)
	for i := 0; i < p.NumSlotsTotal(); i++ {
		tup := types.NewTuple(desc)
		require.NoError(t, tup.SetField(0, types.NewIntField(int32(i))))
		require.NoError(t, tup.SetField(1, types.NewStringField("x")))
		require.NoError(t, p.InsertTuple(tup))
	}
	tup := types.NewTuple(desc)
	require.NoError(t, tup.SetField(0, types.NewIntField(999)))
	require.NoError(t, tup.SetField(1, types.NewStringField("overflow")))
	err := p.InsertTuple(tup)
	require.ErrorIs(t, err, dberr.ErrPageFull)
}

func TestDeleteTuple(t *testing.T) {
	p := emptyPage(t, 4096)
	tup := types.NewTuple(testDesc(t))
	require.NoError(t, tup.SetField(0, types.NewIntField(1)))
	require.NoError(t, tup.SetField(1, types.NewStringField("a")))
	require.NoError(t, p.InsertTuple(tup))

	require.NoError(t, p.DeleteTuple(tup))
	require.False(t, p.IsSlotUsed(tup.RecordID().Slot))

	err := p.DeleteTuple(tup)
	require.ErrorIs(t, err, dberr.ErrSlotEmpty)
}

func TestDeleteNotOnThisPage(t *testing.T) {
	p := emptyPage(t, 4096)
	tup := types.NewTuple(testDesc(t))
	require.NoError(t, tup.SetField(0, types.NewIntField(1)))
	require.NoError(t, tup.SetField(1, types.NewStringField("a")))
	err := p.DeleteTuple(tup)
	require.ErrorIs(t, err, dberr.ErrNotOnThisPage)
}

// P6: round-trip serialize/parse preserves page contents.
func TestSerializeRoundTrip(t *testing.T) {
	pageSize := 4096
	p := emptyPage(t, pageSize)
	desc := testDesc(t)
	for i := 0; i < 3; i++ {
		tup := types.NewTuple(desc)
		require.NoError(t, tup.SetField(0, types.NewIntField(int32(i))))
		require.NoError(t, tup.SetField(1, types.NewStringField("row")))
		require.NoError(t, p.InsertTuple(tup))
	}

	raw := p.Serialize()
	require.Len(t, raw, pageSize)

	p2, err := New(p.ID(), raw, desc, pageSize)
	require.NoError(t, err)
	require.Equal(t, raw, p2.Serialize())
	require.Equal(t, p.GetNumEmptySlots(), p2.GetNumEmptySlots())

	it1, it2 := p.Iterator(), p2.Iterator()
	for it1.HasNext() {
		require.True(t, it2.HasNext())
		t1, err := it1.Next()
		require.NoError(t, err)
		t2, err := it2.Next()
		require.NoError(t, err)
		require.True(t, t1.Equals(t2))
	}
	require.False(t, it2.HasNext())
}

func TestDirtyFlagAndBeforeImage(t *testing.T) {
	p := emptyPage(t, 4096)
	require.Nil(t, p.IsDirty())

	tid := transaction.NewID()
	p.MarkDirty(true, tid)
	require.NotNil(t, p.IsDirty())
	require.Equal(t, tid, *p.IsDirty())

	before, err := p.GetBeforeImage()
	require.NoError(t, err)
	require.Equal(t, p.beforeImageBytesForTest(), before.Serialize())

	tup := types.NewTuple(testDesc(t))
	require.NoError(t, tup.SetField(0, types.NewIntField(1)))
	require.NoError(t, tup.SetField(1, types.NewStringField("a")))
	require.NoError(t, p.InsertTuple(tup))

	p.SetBeforeImage()
	after, err := p.GetBeforeImage()
	require.NoError(t, err)
	require.Equal(t, p.Serialize(), after.Serialize())

	p.MarkDirty(false, tid)
	require.Nil(t, p.IsDirty())
}

func (p *HeapPage) beforeImageBytesForTest() []byte {
	return append([]byte(nil), p.beforeImage...)
}
