package execution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tuplestore/types"
)

func gbSchema(t *testing.T) *types.TupleDesc {
	t.Helper()
	d, err := types.NewTupleDesc([]types.Type{types.StringType, types.IntType}, []string{"gb", "v"})
	require.NoError(t, err)
	return d
}

func gbChild(t *testing.T, rows [][2]any) OpIterator {
	t.Helper()
	desc := gbSchema(t)
	tuples := make([]*types.Tuple, len(rows))
	for i, row := range rows {
		tup := types.NewTuple(desc)
		require.NoError(t, tup.SetField(0, types.NewStringField(row[0].(string))))
		require.NoError(t, tup.SetField(1, types.NewIntField(int32(row[1].(int)))))
		tuples[i] = tup
	}
	it := newTupleIterator(desc, tuples)
	require.NoError(t, it.Open())
	return it
}

func groupResults(t *testing.T, agg *Aggregate) map[string]int32 {
	t.Helper()
	got := make(map[string]int32)
	require.NoError(t, agg.Open())
	defer agg.Close()
	for {
		has, err := agg.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tup, err := agg.Next()
		require.NoError(t, err)
		gb, _ := tup.Field(0)
		val, _ := tup.Field(1)
		got[gb.String()] = val.(types.IntField).Value
	}
	return got
}

// S5 -- grouped AVG: (A,10),(A,20),(B,5),(B,15),(B,10) grouped by gb yields
// {(A,15),(B,10)}.
func TestAggregateGroupedAverage(t *testing.T) {
	child := gbChild(t, [][2]any{
		{"A", 10}, {"A", 20}, {"B", 5}, {"B", 15}, {"B", 10},
	})
	agg, err := NewAggregate(child, 1, 0, Avg)
	require.NoError(t, err)

	got := groupResults(t, agg)
	require.Equal(t, map[string]int32{"A": 15, "B": 10}, got)
}

func TestAggregateGroupedSumAndCount(t *testing.T) {
	child := gbChild(t, [][2]any{
		{"A", 10}, {"A", 20}, {"B", 5},
	})

	sumChild := gbChild(t, [][2]any{{"A", 10}, {"A", 20}, {"B", 5}})
	sumAgg, err := NewAggregate(sumChild, 1, 0, Sum)
	require.NoError(t, err)
	require.Equal(t, map[string]int32{"A": 30, "B": 5}, groupResults(t, sumAgg))

	countAgg, err := NewAggregate(child, 1, 0, Count)
	require.NoError(t, err)
	require.Equal(t, map[string]int32{"A": 2, "B": 1}, groupResults(t, countAgg))
}

func TestAggregateGroupedMinMax(t *testing.T) {
	minChild := gbChild(t, [][2]any{{"A", 10}, {"A", 3}, {"B", 5}})
	minAgg, err := NewAggregate(minChild, 1, 0, Min)
	require.NoError(t, err)
	require.Equal(t, map[string]int32{"A": 3, "B": 5}, groupResults(t, minAgg))

	maxChild := gbChild(t, [][2]any{{"A", 10}, {"A", 3}, {"B", 5}})
	maxAgg, err := NewAggregate(maxChild, 1, 0, Max)
	require.NoError(t, err)
	require.Equal(t, map[string]int32{"A": 10, "B": 5}, groupResults(t, maxAgg))
}

func ungroupedResult(t *testing.T, agg *Aggregate) []int32 {
	t.Helper()
	require.NoError(t, agg.Open())
	defer agg.Close()
	var got []int32
	for {
		has, err := agg.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tup, err := agg.Next()
		require.NoError(t, err)
		val, _ := tup.Field(0)
		got = append(got, val.(types.IntField).Value)
	}
	return got
}

func TestAggregateUngroupedSum(t *testing.T) {
	child := gbChild(t, [][2]any{{"A", 10}, {"B", 5}, {"A", 7}})
	agg, err := NewAggregate(child, 1, NoGrouping, Sum)
	require.NoError(t, err)
	require.Equal(t, []int32{22}, ungroupedResult(t, agg))
}

// P7 -- aggregate over an empty input: COUNT and SUM still yield a 0 row,
// MIN/MAX/AVG yield no row at all.
func TestAggregateEmptyInput(t *testing.T) {
	countAgg, err := NewAggregate(gbChild(t, nil), 1, NoGrouping, Count)
	require.NoError(t, err)
	require.Equal(t, []int32{0}, ungroupedResult(t, countAgg))

	sumAgg, err := NewAggregate(gbChild(t, nil), 1, NoGrouping, Sum)
	require.NoError(t, err)
	require.Equal(t, []int32{0}, ungroupedResult(t, sumAgg))

	minAgg, err := NewAggregate(gbChild(t, nil), 1, NoGrouping, Min)
	require.NoError(t, err)
	require.Empty(t, ungroupedResult(t, minAgg))

	maxAgg, err := NewAggregate(gbChild(t, nil), 1, NoGrouping, Max)
	require.NoError(t, err)
	require.Empty(t, ungroupedResult(t, maxAgg))

	avgAgg, err := NewAggregate(gbChild(t, nil), 1, NoGrouping, Avg)
	require.NoError(t, err)
	require.Empty(t, ungroupedResult(t, avgAgg))
}

func TestAggregateOutputSchemaNames(t *testing.T) {
	child := gbChild(t, [][2]any{{"A", 10}})
	agg, err := NewAggregate(child, 1, 0, Sum)
	require.NoError(t, err)

	name0, err := agg.Schema().FieldName(0)
	require.NoError(t, err)
	require.Equal(t, "gb", name0)
	name1, err := agg.Schema().FieldName(1)
	require.NoError(t, err)
	require.Equal(t, "SUM(v)", name1)
	require.Equal(t, 0, agg.GroupField())
	require.Equal(t, "gb", agg.GroupFieldName())
	require.Equal(t, 1, agg.AggregateField())
	require.Equal(t, "v", agg.AggregateFieldName())
}

func TestAggregateOperationsRequireOpen(t *testing.T) {
	child := gbChild(t, [][2]any{{"A", 10}})
	agg, err := NewAggregate(child, 1, 0, Sum)
	require.NoError(t, err)

	_, err = agg.HasNext()
	require.Error(t, err)
	_, err = agg.Next()
	require.Error(t, err)
	require.Error(t, agg.Rewind())
}
