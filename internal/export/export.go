// Package export writes result tables as tab-delimited text or as an XLSX
// workbook.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is one output artifact: a header row and data rows.
type Table struct {
	// Name is the file name for TSV output and the sheet name for XLSX.
	Name   string
	Header []string
	Rows   [][]string
}

// WriteTSV writes t with one header row. Fields are never quoted, so a tab
// or newline inside a field is replaced with a space.
func WriteTSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	writeLine := func(fields []string) {
		bw.WriteString(strings.Join(clean(fields), "\t"))
		bw.WriteByte('\n')
	}
	writeLine(t.Header)
	for _, row := range t.Rows {
		writeLine(row)
	}
	return bw.Flush()
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func clean(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = fieldCleaner.Replace(f)
	}
	return out
}

// WriteDir writes every table to dir/<Name> and returns the paths written.
func WriteDir(dir string, tables []Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(dir, t.Name)
		if err := writeFile(path, t); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, t Table) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteTSV(f, t); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// WriteXLSX writes one sheet per table. Integer-looking cells are stored as
// numbers.
func WriteXLSX(path string, tables []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	used := map[string]bool{}
	for i, t := range tables {
		name := sheetName(t.Name, used)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("naming sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("adding sheet %s: %w", name, err)
		}

		sw, err := f.NewStreamWriter(name)
		if err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}
		if err := writeSheetRow(sw, 1, t.Header); err != nil {
			return err
		}
		for r, row := range t.Rows {
			if err := writeSheetRow(sw, r+2, row); err != nil {
				return err
			}
		}
		if err := sw.Flush(); err != nil {
			return fmt.Errorf("flushing sheet %s: %w", name, err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func writeSheetRow(sw *excelize.StreamWriter, rowNum int, fields []string) error {
	cells := make([]interface{}, len(fields))
	for i, v := range fields {
		if n, err := strconv.Atoi(v); err == nil {
			cells[i] = n
		} else {
			cells[i] = v
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return sw.SetRow(cell, cells)
}

const maxSheetName = 31

var sheetCleaner = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")

// sheetName derives a unique, Excel-legal sheet name from a file name.
func sheetName(fileName string, used map[string]bool) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	base = sheetCleaner.Replace(base)
	if base == "" {
		base = "Sheet"
	}
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := "_" + strconv.Itoa(n)
		trim := base
		if len(trim)+len(suffix) > maxSheetName {
			trim = trim[:maxSheetName-len(suffix)]
		}
		name = trim + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}
