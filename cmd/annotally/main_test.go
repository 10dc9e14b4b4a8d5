package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeOverview(t *testing.T, root, group string, rows ...string) {
	t.Helper()
	dir := filepath.Join(root, group)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "Gene ID\tRecommend Results\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overview.tsv"), []byte(content), 0o644))
}

func TestRunCmd_WritesMatrixAndSavesRun(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "in")
	outDir := filepath.Join(tmp, "out")
	db := filepath.Join(tmp, "runs.db")
	writeOverview(t, in, "G1", "g1\tAA1_3|AA1", "g2\tAA1")
	writeOverview(t, in, "G2", "g3\tGH5|GH5")

	stdout, err := execute(t, "run", "dbcan-genomes",
		"--config", filepath.Join(tmp, "absent.yaml"),
		"--in", in, "--out", outDir, "--db", db,
		"--xlsx", filepath.Join(tmp, "tables.xlsx"),
		"--report")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Profile: dbcan-genomes")
	assert.Contains(t, stdout, "Entities: 3 in 2 group(s)")

	b, err := os.ReadFile(filepath.Join(outDir, "cazyme_matrix.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "Genome\tAA1\tAA1_3\tGH5\nG1\t1\t1\t0\nG2\t0\t0\t1\n", string(b))
	assert.FileExists(t, filepath.Join(tmp, "tables.xlsx"))

	m := regexp.MustCompile(`Saved run (\S+) to`).FindStringSubmatch(stdout)
	require.Len(t, m, 2, stdout)

	list, err := execute(t, "runs", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, list, m[1])
	assert.Contains(t, list, "dbcan-genomes")

	show, err := execute(t, "runs", "show", m[1], "cazyme_matrix.tsv", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Group\tAA1\tAA1_3\tGH5\nG1\t1\t1\t0\nG2\t0\t0\t1\n", show)
}

func TestRunCmd_NoValidRecords(t *testing.T) {
	tmp := t.TempDir()
	outDir := filepath.Join(tmp, "out")

	stdout, err := execute(t, "run", "dbcan-genomes",
		"--config", filepath.Join(tmp, "absent.yaml"),
		"--in", tmp, "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No valid input records")
	assert.NoDirExists(t, outDir)
}

func TestRunCmd_BadInput(t *testing.T) {
	tmp := t.TempDir()
	_, err := execute(t, "run", "dbcan-genomes",
		"--config", filepath.Join(tmp, "absent.yaml"),
		"--in", filepath.Join(tmp, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestResolveCmd(t *testing.T) {
	out, err := execute(t, "resolve", "AA1", "AA1_3", "GH13|GH1", "GH5", "GH5_a")
	require.NoError(t, err)
	assert.Equal(t, "AA1_3 GH1 GH13 GH5 GH5_a\nnear miss: GH5 ~ GH5_a\n", out)

	out, err = execute(t, "resolve", "--suffix-pattern", "[a-z]", "GH5", "GH5a")
	require.NoError(t, err)
	assert.Equal(t, "GH5a\n", out)
}

func TestProfilesCmd(t *testing.T) {
	out, err := execute(t, "profiles")
	require.NoError(t, err)
	for _, name := range []string{"dbcan-genomes", "dbcan-f2", "eggnog-orthogroups", "interpro-orthogroups", "go-orthogroups"} {
		assert.Contains(t, out, name)
	}

	out, err = execute(t, "profiles", "dbcan-f2")
	require.NoError(t, err)
	assert.Contains(t, out, "low.level.summary.tsv")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "annotally dev\n", out)
}
