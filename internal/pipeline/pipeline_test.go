package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/hurttlocker/annotally/internal/config"
	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/export"
	"github.com/hurttlocker/annotally/internal/ontology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func row(fields ...string) string { return strings.Join(fields, "\t") + "\n" }

// iprRow builds a 15-column InterProScan line.
func iprRow(protein, length, analysis, acc, ipr, iprDesc, gos, pathways string) string {
	return row(protein, "md5", length, analysis, acc, "desc", "1", "50", "1e-5", "T", "01-01-2024", ipr, iprDesc, gos, pathways)
}

func preset(t *testing.T, name string) *config.Profile {
	t.Helper()
	p, _, err := config.LoadProfile(name)
	require.NoError(t, err)
	return p
}

func tableNamed(t *testing.T, out *Output, name string) export.Table {
	t.Helper()
	for _, tbl := range out.Tables {
		if tbl.Name == name {
			return tbl
		}
	}
	t.Fatalf("no table %s in %d tables", name, len(out.Tables))
	return export.Table{}
}

func TestRun_DbcanGenomeMatrix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "G1", "overview.tsv"),
		row("Gene ID", "Recommend Results")+
			row("g1", "AA1_3|AA1")+
			row("g2", "AA1"))
	writeFile(t, filepath.Join(root, "G2", "overview.tsv"),
		row("Gene ID", "Recommend Results")+
			row("g3", "GH5_e12|GH5")+
			row("g4", "-"))

	var first []export.Table
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			out, err := Run(context.Background(), Options{
				Profile:  preset(t, "dbcan-genomes"),
				InputDir: root,
				Workers:  workers,
				Logger:   zaptest.NewLogger(t),
			})
			require.NoError(t, err)

			assert.Equal(t, 4, out.Stats.Entities)
			assert.Equal(t, 2, out.Stats.Groups)
			assert.Empty(t, out.Diagnostics)

			m := out.Matrices["cazy"]
			require.NotNil(t, m)
			assert.Equal(t, []string{"AA1", "AA1_3", "GH5"}, m.Columns)

			tbl := tableNamed(t, out, "cazyme_matrix.tsv")
			assert.Equal(t, []string{"Genome", "AA1", "AA1_3", "GH5"}, tbl.Header)
			assert.Equal(t, [][]string{
				{"G1", "1", "1", "0"},
				{"G2", "0", "0", "1"},
			}, tbl.Rows)

			if first == nil {
				first = out.Tables
				return
			}
			if diff := cmp.Diff(first, out.Tables); diff != "" {
				t.Fatalf("tables depend on worker count (-workers=1 +workers=%d):\n%s", workers, diff)
			}
		})
	}
}

func TestRun_InterproSummaryAndDetail(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "OG1.tsv"),
		iprRow("P1", "100", "Pfam", "PF00001", "IPR000001", "Kinase", "GO:0001|GO:0002", "Reactome:R-1|MetaCyc:PWY-1")+
			iprRow("P1", "100", "Gene3D", "G3D.1", "IPR000001", "Kinase", "-", "-")+
			iprRow("P2", "300", "SMART", "SM0001", "-", "-", "GO:0002", "-"))
	writeFile(t, filepath.Join(root, "OG2.tsv"),
		iprRow("P3", "50", "Pfam", "PF00002", "-", "-", "-", "-")+
			row("P3", "md5", "50", "Pfam"))

	out, err := Run(context.Background(), Options{
		Profile:  preset(t, "interpro-orthogroups"),
		InputDir: root,
		Workers:  2,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	summary := tableNamed(t, out, "interproscan_orthogroup_summary.tsv")
	assert.Equal(t, []string{
		"Orthogroup", "Num_Proteins", "Median_Length",
		"Domains", "GO_Terms", "InterPro_Entries", "MetaCyc_Pathways", "Reactome_Pathways",
	}, summary.Header)
	assert.Equal(t, [][]string{
		{"OG1", "2", "200", "Pfam:PF00001, SMART:SM0001", "GO:0001, GO:0002", "IPR000001:Kinase", "MetaCyc:PWY-1", "Reactome:R-1"},
		{"OG2", "1", "50", "Pfam:PF00002", "-", "-", "-", "-"},
	}, summary.Rows)

	detail := tableNamed(t, out, "interproscan_per_protein.tsv")
	assert.Equal(t, []string{"Orthogroup", "Protein", "Length", "domains", "go", "ipr", "metacyc", "reactome"}, detail.Header)
	assert.Equal(t, [][]string{
		{"OG1", "P1", "100", "Pfam:PF00001", "GO:0001, GO:0002", "IPR000001:Kinase", "MetaCyc:PWY-1", "Reactome:R-1"},
		{"OG1", "P2", "300", "SMART:SM0001", "GO:0002", "-", "-", "-"},
		{"OG2", "P3", "50", "Pfam:PF00002", "-", "-", "-", "-"},
	}, detail.Rows)

	require.Len(t, out.Diagnostics, 1)
	d := out.Diagnostics[0]
	assert.Equal(t, diag.KindMalformedRecord, d.Kind)
	assert.Equal(t, 2, d.Line)
	assert.True(t, errors.Is(d, diag.ErrMalformedRecord))
}

const goOBO = `format-version: 1.2

[Term]
id: GO:0001
name: growth
namespace: biological_process

[Term]
id: GO:0002
name: binding
namespace: molecular_function

[Term]
id: GO:0003
name: membrane
namespace: cellular_component
alt_id: GO:0033
`

func TestRun_GONamespaceSplit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "eggnog-annotations", "OG1.emapper.annotations"),
		"## emapper version\n"+
			row("#query", "seed_ortholog", "GOs")+
			row("P1", "x", "GO:0001,GO:0033"))
	writeFile(t, filepath.Join(root, "iprscan-annotations", "OG1.interproscan.tsv"),
		row("P1", "md5", "10", "Pfam", "PF1", "d", "1", "9", "1", "T", "date", "-", "-", "GO:0002|GO:9999")+
			row("P2", "md5", "10", "Pfam", "PF1", "d", "1", "9", "1", "T", "date", "-", "-", "GO:0001"))
	writeFile(t, filepath.Join(root, "iprscan-annotations", "OG2.interproscan.tsv"),
		row("P3", "md5", "10", "Pfam", "PF1", "d", "1", "9", "1", "T", "date", "-", "-", "-"))

	onto, err := ontology.Parse(strings.NewReader(goOBO))
	require.NoError(t, err)

	out, err := Run(context.Background(), Options{
		Profile:  preset(t, "go-orthogroups"),
		InputDir: root,
		Ontology: onto,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	summary := tableNamed(t, out, "orthogroup_go_summary.tsv")
	assert.Equal(t, []string{
		"Orthogroup", "BP_GO_IDs", "BP_Names", "MF_GO_IDs", "MF_Names", "CC_GO_IDs", "CC_Names",
	}, summary.Header)
	assert.Equal(t, [][]string{
		{"OG1", "GO:0001", "growth", "GO:0002", "binding", "GO:0003", "membrane"},
		{"OG2", "-", "-", "-", "-", "-", "-"},
	}, summary.Rows)
	assert.Equal(t, 3, out.Stats.Entities)
}

func TestRun_NeedsOntology(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Profile:  preset(t, "go-orthogroups"),
		InputDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ontology")
}

func TestRun_NoValidRecords(t *testing.T) {
	out, err := Run(context.Background(), Options{
		Profile:  preset(t, "dbcan-genomes"),
		InputDir: t.TempDir(),
	})
	require.ErrorIs(t, err, diag.ErrNoValidRecords)
	require.NotNil(t, out)
	assert.Empty(t, out.Tables)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, diag.KindMissingSource, out.Diagnostics[0].Kind)
}

func TestRun_EntityInTwoGroups(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "G1", "overview.tsv"), row("Gene ID", "Recommend Results")+row("g1", "AA1"))
	writeFile(t, filepath.Join(root, "G2", "overview.tsv"), row("Gene ID", "Recommend Results")+row("g1", "GH5"))

	out, err := Run(context.Background(), Options{
		Profile:  preset(t, "dbcan-genomes"),
		InputDir: root,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Stats.Entities)
	assert.Equal(t, []string{"G1"}, out.Matrices["cazy"].Rows)

	require.NotEmpty(t, out.Diagnostics)
	for _, d := range out.Diagnostics {
		assert.Equal(t, diag.KindMalformedRecord, d.Kind)
		assert.Equal(t, "G2", d.Group)
	}
}

func TestRun_NearMisses(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "G1", "overview.tsv"),
		row("Gene ID", "Recommend Results")+
			row("g1", "GH5|GH5_a")+
			row("g2", "GH13"))

	out, err := Run(context.Background(), Options{
		Profile:  preset(t, "dbcan-genomes"),
		InputDir: root,
	})
	require.NoError(t, err)
	pairs := out.NearMisses["cazy"]
	require.Len(t, pairs, 1)
	assert.Equal(t, "GH5", pairs[0].Parent)
	assert.Equal(t, "GH5_a", pairs[0].Child)
	assert.Equal(t, []string{"GH13", "GH5|GH5_a"}, out.Matrices["cazy"].Columns)
}
