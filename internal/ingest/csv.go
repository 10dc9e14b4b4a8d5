package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/record"
	"github.com/hurttlocker/annotally/internal/token"
)

// TableImporter handles tab-delimited annotation tables laid out by a Layout.
type TableImporter struct {
	Source string
	Layout Layout
	// Match is a filepath.Match pattern applied to the base name; empty
	// accepts every file.
	Match       string
	MaxFileSize int64
}

// CanHandle returns true when the base name matches the importer's pattern.
func (t *TableImporter) CanHandle(path string) bool {
	if t.Match == "" {
		return true
	}
	ok, err := filepath.Match(t.Match, filepath.Base(path))
	return err == nil && ok
}

// Import parses one table. A header that lacks a referenced column skips
// the whole file with a malformed-record diagnostic. Rows with too few
// fields or an empty entity are skipped individually.
func (t *TableImporter) Import(ctx context.Context, path, group string) ([]record.Observation, []diag.Diagnostic, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	maxSize := t.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.Size() > maxSize {
		return nil, []diag.Diagnostic{t.fileDiag(diag.KindMalformedRecord, group, absPath,
			fmt.Sprintf("file size %d exceeds limit %d", info.Size(), maxSize))}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	p := &tableParser{
		imp:   t,
		group: group,
		file:  absPath,
	}
	if !t.Layout.usesNames() {
		if p.bound, err = t.Layout.bind(nil); err != nil {
			return nil, nil, fmt.Errorf("binding %s layout: %w", t.Source, err)
		}
	}

	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		line, readErr := r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, nil, fmt.Errorf("reading %s: %w", path, readErr)
		}
		if line != "" {
			lineNo++
			if stop := p.line(line, lineNo); stop {
				break
			}
		}
		if readErr != nil {
			break
		}
	}

	if p.bound == nil && !p.skipped && lineNo > 0 {
		p.diags = append(p.diags, t.fileDiag(diag.KindMalformedRecord, group, absPath,
			fmt.Sprintf("no %s header line found", t.Layout.header())))
	}
	return p.obs, p.diags, nil
}

func (t *TableImporter) fileDiag(kind diag.Kind, group, file, msg string) diag.Diagnostic {
	return diag.Diagnostic{Kind: kind, Group: group, Source: t.Source, File: file, Message: msg}
}

type tableParser struct {
	imp        *TableImporter
	group      string
	file       string
	bound      *bound
	headerSeen bool
	skipped    bool

	obs   []record.Observation
	diags []diag.Diagnostic
}

// line handles one raw line and reports whether the rest of the file should
// be ignored.
func (p *tableParser) line(raw string, lineNo int) bool {
	text := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(text) == "" {
		return false
	}
	layout := p.imp.Layout

	if layout.header() == HeaderHash {
		if strings.HasPrefix(text, "##") {
			return false
		}
		if strings.HasPrefix(text, "#") {
			if p.headerSeen {
				return false
			}
			return p.bindHeader(strings.TrimPrefix(text, "#"), lineNo)
		}
	} else if strings.HasPrefix(text, layout.comment()) {
		return false
	}

	if layout.header() == HeaderFirst && !p.headerSeen {
		return p.bindHeader(text, lineNo)
	}
	if p.bound == nil {
		p.diags = append(p.diags, p.rowDiag(diag.KindMalformedRecord, lineNo, "row before header line"))
		return false
	}

	p.row(text, lineNo)
	return false
}

func (p *tableParser) bindHeader(text string, lineNo int) bool {
	p.headerSeen = true
	if p.bound != nil {
		return false
	}
	header := strings.Split(strings.TrimSpace(text), "\t")
	b, err := p.imp.Layout.bind(header)
	if err != nil {
		p.skipped = true
		p.diags = append(p.diags, p.rowDiag(diag.KindMalformedRecord, lineNo, err.Error()))
		return true
	}
	p.bound = b
	return false
}

func (p *tableParser) rowDiag(kind diag.Kind, lineNo int, msg string) diag.Diagnostic {
	return diag.Diagnostic{
		Kind:    kind,
		Group:   p.group,
		Source:  p.imp.Source,
		File:    p.file,
		Line:    lineNo,
		Message: msg,
	}
}

func (p *tableParser) row(text string, lineNo int) {
	b := p.bound
	fields, err := token.Split(text, b.min)
	if err != nil {
		p.diags = append(p.diags, p.rowDiag(diag.KindMalformedRecord, lineNo, err.Error()))
		return
	}
	if !b.when.admits(fields) {
		return
	}
	entity := strings.TrimSpace(fields[b.entity])
	if entity == "" {
		p.diags = append(p.diags, p.rowDiag(diag.KindMalformedRecord, lineNo, "empty entity identifier"))
		return
	}

	base := record.Observation{
		Group:  p.group,
		Entity: entity,
		Source: p.imp.Source,
		File:   p.file,
		Line:   lineNo,
	}
	if len(b.measures) > 0 {
		base.Measures = make(map[string]float64, len(b.measures))
		for _, m := range b.measures {
			v, err := diag.Number(fields[m.idx])
			if err != nil {
				p.diags = append(p.diags, p.rowDiag(diag.KindNonNumericValue, lineNo,
					fmt.Sprintf("measure %s: %v", m.name, err)))
			}
			base.Measures[m.name] = v
		}
	}
	// The bare observation registers the entity even when no column applies.
	p.obs = append(p.obs, base)

	for _, c := range b.columns {
		if !c.when.admits(fields) {
			continue
		}
		o := base
		o.Measures = nil
		o.Category = c.Category
		o.Tokens = c.tokens(c.value(fields))
		p.obs = append(p.obs, o)
	}
}
