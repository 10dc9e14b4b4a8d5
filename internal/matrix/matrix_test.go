package matrix

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/annotally/internal/aggregate"
)

func TestBuild_EndToEndScenario(t *testing.T) {
	m := Build(map[string]aggregate.FrequencyMap{
		"G1": {"AA1_3": 1, "AA1": 1},
		"G2": {"GH5": 1},
	}, Options{})

	assert.Equal(t, []string{"G1", "G2"}, m.Rows)
	assert.Equal(t, []string{"AA1", "AA1_3", "GH5"}, m.Columns)
	assert.Equal(t, []int{1, 1, 0}, m.Row("G1"))
	assert.Equal(t, []int{0, 0, 1}, m.Row("G2"))
}

func TestBuild_CompleteCells(t *testing.T) {
	freqs := map[string]aggregate.FrequencyMap{
		"A": {"x": 2},
		"B": {"y": 3, "z": 1},
		"C": {},
	}
	m := Build(freqs, Options{})
	require.Len(t, m.Cells, 3)
	for _, row := range m.Cells {
		require.Len(t, row, 3)
	}
	for _, g := range m.Rows {
		for _, l := range m.Columns {
			assert.Equal(t, freqs[g][l], m.Get(g, l), "%s/%s", g, l)
		}
	}
	assert.Zero(t, m.Get("nope", "x"))
	assert.Zero(t, m.Get("A", "nope"))
	assert.Equal(t, []int{0, 0, 0}, m.Row("nope"))
}

func TestBuild_ExplicitOrder(t *testing.T) {
	m := Build(map[string]aggregate.FrequencyMap{
		"G2": {"b": 1, "c": 2},
		"G1": {"a": 1},
	}, Options{Rows: []string{"G2"}, Columns: []string{"c", "extra", "c"}})

	assert.Equal(t, []string{"G2", "G1"}, m.Rows)
	assert.Equal(t, []string{"c", "extra", "a", "b"}, m.Columns)
	assert.Equal(t, []int{2, 0, 0, 1}, m.Row("G2"))
}

func TestCollapse_CAZyClasses(t *testing.T) {
	m := Build(map[string]aggregate.FrequencyMap{
		"g1": {"GH5": 2, "GH13_1": 1, "CBM1": 4, "AA9": 1, "unknown": 7},
		"g2": {"GT2": 3, "CE1": 1, "PL1_2": 2},
	}, Options{})

	c := m.Collapse(CAZyClasses, "Total_CAZymes")
	assert.Equal(t, []string{"GH", "GT", "PL", "CE", "AA", "CBM", "Total_CAZymes"}, c.Columns)
	if diff := cmp.Diff([][]int{
		{3, 0, 0, 0, 1, 4, 8},
		{0, 3, 2, 1, 0, 0, 6},
	}, c.Cells); diff != "" {
		t.Fatalf("collapsed cells mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 8, c.Get("g1", "Total_CAZymes"))

	noTotal := m.Collapse(CAZyClasses[:1], "")
	assert.Equal(t, []string{"GH"}, noTotal.Columns)
}

func TestTable(t *testing.T) {
	m := Build(map[string]aggregate.FrequencyMap{"G1": {"a": 1}, "G2": {"b": 2}}, Options{})
	header, rows := m.Table("Genome")
	assert.Equal(t, []string{"Genome", "a", "b"}, header)
	assert.Equal(t, [][]string{{"G1", "1", "0"}, {"G2", "0", "2"}}, rows)
}
