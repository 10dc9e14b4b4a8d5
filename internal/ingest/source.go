package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hurttlocker/annotally/internal/diag"
)

// GroupPlaceholder is replaced by the group key in Source.Path templates.
const GroupPlaceholder = "{group}"

// Source describes where one annotation source lives and how it is laid out.
//
// Files are found either by Glob (group derived from each path by Group) or
// by GroupGlob, which enumerates group directories and expects one file per
// group at Path. An absent expected file is a missing-source diagnostic.
type Source struct {
	Name      string    `yaml:"name" validate:"required"`
	Glob      string    `yaml:"glob" validate:"required_without=GroupGlob"`
	GroupGlob string    `yaml:"group_glob" validate:"required_without=Glob"`
	Path      string    `yaml:"path" validate:"required_with=GroupGlob"`
	Group     GroupRule `yaml:"group"`
	Layout    Layout    `yaml:"layout"`
}

// GroupRule derives a group key from a file path.
type GroupRule struct {
	// From is one of dir (parent directory name, the default), basename
	// (base name minus the first matching suffix), cut (base name up to the
	// first Cut separator) or regexp (first capture group of Pattern against
	// the slash-separated path).
	From     string   `yaml:"from" validate:"omitempty,oneof=dir basename cut regexp"`
	Cut      string   `yaml:"cut"`
	Suffixes []string `yaml:"suffixes"`
	Pattern  string   `yaml:"pattern" validate:"omitempty,regexp"`
}

// Keyer returns the compiled derivation function.
func (g GroupRule) Keyer() (func(path string) string, error) {
	switch g.From {
	case "", "dir":
		return func(path string) string {
			return filepath.Base(filepath.Dir(path))
		}, nil
	case "basename":
		return func(path string) string {
			base := filepath.Base(path)
			for _, s := range g.Suffixes {
				if strings.HasSuffix(base, s) {
					return strings.TrimSuffix(base, s)
				}
			}
			return base
		}, nil
	case "cut":
		sep := g.Cut
		if sep == "" {
			sep = "."
		}
		return func(path string) string {
			base := filepath.Base(path)
			before, _, _ := strings.Cut(base, sep)
			return before
		}, nil
	case "regexp":
		re, err := regexp.Compile(g.Pattern)
		if err != nil {
			return nil, fmt.Errorf("group pattern %q: %w", g.Pattern, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("group pattern %q has no capture group", g.Pattern)
		}
		return func(path string) string {
			m := re.FindStringSubmatch(filepath.ToSlash(path))
			if m == nil {
				return ""
			}
			return m[1]
		}, nil
	}
	return nil, fmt.Errorf("unknown group derivation %q", g.From)
}

// Discover lists the files of src under root, sorted by group then path.
func Discover(root string, src Source) ([]Job, []diag.Diagnostic, error) {
	if src.GroupGlob != "" {
		return discoverByGroup(root, src)
	}

	keyer, err := src.Group.Keyer()
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: %w", src.Name, err)
	}
	matches, err := filepath.Glob(filepath.Join(root, src.Glob))
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: glob %q: %w", src.Name, src.Glob, err)
	}

	var (
		jobs  []Job
		diags []diag.Diagnostic
	)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		group := keyer(path)
		if group == "" {
			diags = append(diags, diag.Diagnostic{
				Kind:    diag.KindMalformedRecord,
				Source:  src.Name,
				File:    path,
				Message: "cannot derive group key from path",
			})
			continue
		}
		jobs = append(jobs, Job{Source: src.Name, Group: group, Path: path})
	}
	if len(jobs) == 0 {
		diags = append(diags, diag.Diagnostic{
			Kind:    diag.KindMissingSource,
			Source:  src.Name,
			File:    filepath.Join(root, src.Glob),
			Message: "no files match",
		})
	}
	sortJobs(jobs)
	return jobs, diags, nil
}

func discoverByGroup(root string, src Source) ([]Job, []diag.Diagnostic, error) {
	dirs, err := filepath.Glob(filepath.Join(root, src.GroupGlob))
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: group glob %q: %w", src.Name, src.GroupGlob, err)
	}

	var (
		jobs  []Job
		diags []diag.Diagnostic
	)
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		group := filepath.Base(dir)
		path := filepath.Join(root, strings.ReplaceAll(src.Path, GroupPlaceholder, group))
		if _, err := os.Stat(path); err != nil {
			diags = append(diags, diag.Diagnostic{
				Kind:    diag.KindMissingSource,
				Group:   group,
				Source:  src.Name,
				File:    path,
				Message: "expected file is absent",
			})
			continue
		}
		jobs = append(jobs, Job{Source: src.Name, Group: group, Path: path})
	}
	sortJobs(jobs)
	return jobs, diags, nil
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Group != jobs[j].Group {
			return jobs[i].Group < jobs[j].Group
		}
		return jobs[i].Path < jobs[j].Path
	})
}
