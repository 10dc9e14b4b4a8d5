// Package matrix turns per-group frequency maps into a complete group x label
// table.
package matrix

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hurttlocker/annotally/internal/aggregate"
)

// Options controls row and column order. Listed entries come first in the
// given order; everything else follows sorted. Entries not observed anywhere
// are still emitted (as all-zero rows or columns).
type Options struct {
	Rows    []string
	Columns []string
}

// Matrix is a dense group x label count table. Every cell is defined.
type Matrix struct {
	Rows    []string
	Columns []string
	Cells   [][]int

	rowIdx map[string]int
	colIdx map[string]int
}

// Build computes the column universe as the union of every group's labels
// and fills absent cells with zero.
func Build(freqs map[string]aggregate.FrequencyMap, opts Options) *Matrix {
	rowSet := make(map[string]struct{}, len(freqs))
	colSet := make(map[string]struct{})
	for group, fm := range freqs {
		rowSet[group] = struct{}{}
		for label := range fm {
			colSet[label] = struct{}{}
		}
	}

	m := &Matrix{
		Rows:    order(opts.Rows, rowSet),
		Columns: order(opts.Columns, colSet),
	}
	m.index()
	m.Cells = make([][]int, len(m.Rows))
	for i, group := range m.Rows {
		row := make([]int, len(m.Columns))
		for label, n := range freqs[group] {
			row[m.colIdx[label]] = n
		}
		m.Cells[i] = row
	}
	return m
}

func order(explicit []string, set map[string]struct{}) []string {
	out := make([]string, 0, len(set)+len(explicit))
	seen := make(map[string]struct{}, len(set))
	for _, v := range explicit {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	rest := make([]string, 0, len(set))
	for v := range set {
		if _, ok := seen[v]; !ok {
			rest = append(rest, v)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func (m *Matrix) index() {
	m.rowIdx = make(map[string]int, len(m.Rows))
	for i, r := range m.Rows {
		m.rowIdx[r] = i
	}
	m.colIdx = make(map[string]int, len(m.Columns))
	for i, c := range m.Columns {
		m.colIdx[c] = i
	}
}

// Get returns the cell for (row, column); unknown rows or columns read as 0.
func (m *Matrix) Get(row, column string) int {
	i, ok := m.rowIdx[row]
	if !ok {
		return 0
	}
	j, ok := m.colIdx[column]
	if !ok {
		return 0
	}
	return m.Cells[i][j]
}

// Row returns the counts of one group in column order.
func (m *Matrix) Row(row string) []int {
	i, ok := m.rowIdx[row]
	if !ok {
		return make([]int, len(m.Columns))
	}
	return append([]int(nil), m.Cells[i]...)
}

// Class groups label columns sharing a prefix into one coarser column.
type Class struct {
	Name     string
	Prefixes []string
}

// CAZyClasses are the CAZy enzyme classes used for high-level summaries.
var CAZyClasses = []Class{
	{Name: "GH", Prefixes: []string{"GH"}},
	{Name: "GT", Prefixes: []string{"GT"}},
	{Name: "PL", Prefixes: []string{"PL"}},
	{Name: "CE", Prefixes: []string{"CE"}},
	{Name: "AA", Prefixes: []string{"AA"}},
	{Name: "CBM", Prefixes: []string{"CBM"}},
}

// Collapse sums label columns into class columns; a label counts toward the
// first class with a matching prefix, labels matching none are dropped. A
// non-empty total appends a row-total column over the class columns.
func (m *Matrix) Collapse(classes []Class, total string) *Matrix {
	cols := make([]string, 0, len(classes)+1)
	for _, c := range classes {
		cols = append(cols, c.Name)
	}
	if total != "" {
		cols = append(cols, total)
	}

	target := make([]int, len(m.Columns))
	for j, label := range m.Columns {
		target[j] = -1
		for ci, c := range classes {
			if hasAnyPrefix(label, c.Prefixes) {
				target[j] = ci
				break
			}
		}
	}

	out := &Matrix{Rows: append([]string(nil), m.Rows...), Columns: cols}
	out.index()
	out.Cells = make([][]int, len(m.Rows))
	for i, row := range m.Cells {
		cr := make([]int, len(cols))
		sum := 0
		for j, v := range row {
			if t := target[j]; t >= 0 {
				cr[t] += v
				sum += v
			}
		}
		if total != "" {
			cr[len(classes)] = sum
		}
		out.Cells[i] = cr
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Table renders the matrix as string rows with a leading key column, for
// tabular writers.
func (m *Matrix) Table(keyHeader string) (header []string, rows [][]string) {
	header = append([]string{keyHeader}, m.Columns...)
	rows = make([][]string, len(m.Rows))
	for i, r := range m.Rows {
		line := make([]string, 0, len(m.Columns)+1)
		line = append(line, r)
		for _, v := range m.Cells[i] {
			line = append(line, strconv.Itoa(v))
		}
		rows[i] = line
	}
	return header, rows
}
