package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTables() []Table {
	return []Table{
		{
			Name:   "cazyme_matrix.tsv",
			Header: []string{"Genome", "AA1", "AA1_3", "GH5"},
			Rows:   [][]string{{"G1", "1", "1", "0"}, {"G2", "0", "0", "1"}},
		},
		{
			Name:   "eggnog_orthogroup_summary.tsv",
			Header: []string{"Orthogroup", "Top_Descriptions"},
			Rows:   [][]string{{"OG1", "Cellulase (2), \"odd\"\tfield"}},
		},
	}
}

func TestWriteTSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, sampleTables()[0]))
	assert.Equal(t, "Genome\tAA1\tAA1_3\tGH5\nG1\t1\t1\t0\nG2\t0\t0\t1\n", buf.String())
}

func TestWriteTSV_NoQuotingOrEmbeddedTabs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, sampleTables()[1]))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"OG1", "Cellulase (2), \"odd\" field"}, strings.Split(lines[1], "\t"))
}

func TestWriteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteDir(dir, sampleTables())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "Genome\tAA1"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, WriteXLSX(path, sampleTables()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"cazyme_matrix", "eggnog_orthogroup_summary"}, f.GetSheetList())
	v, err := f.GetCellValue("cazyme_matrix", "D3")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	rows, err := f.GetRows("eggnog_orthogroup_summary")
	require.NoError(t, err)
	assert.Equal(t, "Orthogroup", rows[0][0])
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a_b", sheetName("a:b.tsv", used))
	assert.Equal(t, "a_b_2", sheetName("a/b.tsv", used))

	long := strings.Repeat("x", 40) + ".tsv"
	first := sheetName(long, used)
	second := sheetName(long, used)
	assert.Len(t, first, 31)
	assert.Len(t, second, 31)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "Sheet", sheetName(".tsv", used))
}
