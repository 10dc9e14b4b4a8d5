package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/annotally/internal/aggregate"
	"github.com/hurttlocker/annotally/internal/ingest"
	"github.com/hurttlocker/annotally/internal/matrix"
	"github.com/hurttlocker/annotally/internal/resolve"
)

// Profile describes one aggregation job: where each source lives, how its
// columns map to categories, and how every category is summarized.
type Profile struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`

	GroupHeader    string `yaml:"group_header"`
	EntityHeader   string `yaml:"entity_header"`
	EntitiesHeader string `yaml:"entities_header"`

	Sources    []ingest.Source `yaml:"sources" validate:"required,min=1,dive"`
	Categories []Category      `yaml:"categories" validate:"required,min=1,dive"`
	Measures   []MeasureColumn `yaml:"measures" validate:"dive"`
	Outputs    Outputs         `yaml:"outputs"`
	Settings   Settings        `yaml:"settings"`
}

// Category is the summary rule for one category.
type Category struct {
	Name string         `yaml:"name" validate:"required"`
	Mode aggregate.Mode `yaml:"mode" validate:"required,oneof=count combination top ranked set"`
	TopN int            `yaml:"top_n" validate:"gte=0"`
	// Collapse enables specificity resolution; SuffixPattern replaces the
	// numeric-suffix relation.
	Collapse      bool   `yaml:"collapse"`
	SuffixPattern string `yaml:"suffix_pattern" validate:"omitempty,regexp"`
	Sep           string `yaml:"sep"`
	Header        string `yaml:"header"`
	DetailHeader  string `yaml:"detail_header"`
	Replace       bool   `yaml:"replace"`
	// Namespaces splits ontology IDs into BP/MF/CC summary columns with term
	// names; it needs an ontology file.
	Namespaces bool        `yaml:"namespaces"`
	Matrix     *MatrixSpec `yaml:"matrix"`
}

// MatrixSpec requests a group x label count matrix for a counted category,
// optionally with a class-level collapse.
type MatrixSpec struct {
	File        string      `yaml:"file" validate:"required"`
	Columns     []string    `yaml:"columns"`
	ClassFile   string      `yaml:"class_file" validate:"required_with=ClassPreset Classes"`
	ClassPreset string      `yaml:"class_preset" validate:"omitempty,oneof=cazy"`
	Classes     []ClassSpec `yaml:"classes" validate:"dive"`
	Total       string      `yaml:"total"`
}

// ClassSpec is one class of a collapsed matrix.
type ClassSpec struct {
	Name     string   `yaml:"name" validate:"required"`
	Prefixes []string `yaml:"prefixes" validate:"required,min=1,dive,required"`
}

// MeasureColumn names the detail and median summary columns of a measure.
type MeasureColumn struct {
	Name         string `yaml:"name" validate:"required"`
	Header       string `yaml:"header"`
	DetailHeader string `yaml:"detail_header"`
}

// Outputs names the table files; empty names disable a table.
type Outputs struct {
	Detail  string `yaml:"detail"`
	Summary string `yaml:"summary"`
}

// Settings are run parameters a profile may preset. They sit below env and
// CLI values in precedence.
type Settings struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`
	DBPath    string `yaml:"db_path"`
	Workers   int    `yaml:"workers" validate:"gte=0"`
	Ontology  string `yaml:"ontology"`
	XLSX      string `yaml:"xlsx"`
}

var profileValidate *validator.Validate

func init() {
	profileValidate = validator.New(validator.WithRequiredStructEnabled())
	profileValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := profileValidate.RegisterValidation("regexp", validateRegexp); err != nil {
		panic(fmt.Sprintf("registering regexp validation: %v", err))
	}
}

// validateRegexp accepts strings that compile as Go regular expressions.
func validateRegexp(fl validator.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(b []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProfile reads a profile from a file path, falling back to a built-in
// preset of that name. It returns the profile and where it came from.
func LoadProfile(nameOrPath string) (*Profile, string, error) {
	nameOrPath = strings.TrimSpace(nameOrPath)
	if nameOrPath == "" {
		return nil, "", errors.New("profile name or path is required")
	}

	path := expandUserPath(nameOrPath)
	if b, err := os.ReadFile(path); err == nil {
		p, err := ParseProfile(b)
		if err != nil {
			return nil, "", fmt.Errorf("profile %s: %w", path, err)
		}
		abs, _ := filepath.Abs(path)
		return p, abs, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}

	b, err := presetBytes(nameOrPath)
	if err != nil {
		return nil, "", err
	}
	p, err := ParseProfile(b)
	if err != nil {
		return nil, "", fmt.Errorf("preset %s: %w", nameOrPath, err)
	}
	return p, "preset:" + nameOrPath, nil
}

// Validate checks struct tags, then cross-references that tags cannot
// express. All problems are reported together.
func (p *Profile) Validate() error {
	var errs []error
	if err := profileValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	categories := map[string]*Category{}
	for i := range p.Categories {
		c := &p.Categories[i]
		if _, dup := categories[c.Name]; dup {
			errs = append(errs, fmt.Errorf("category %q declared twice", c.Name))
		}
		categories[c.Name] = c
		if c.Matrix != nil && c.Mode != aggregate.ModeCount && c.Mode != aggregate.ModeCombination {
			errs = append(errs, fmt.Errorf("category %q: matrix needs mode count or combination", c.Name))
		}
		if c.SuffixPattern != "" && !c.Collapse {
			errs = append(errs, fmt.Errorf("category %q: suffix_pattern without collapse", c.Name))
		}
	}

	sources := map[string]bool{}
	measures := map[string]bool{}
	for _, s := range p.Sources {
		if sources[s.Name] {
			errs = append(errs, fmt.Errorf("source %q declared twice", s.Name))
		}
		sources[s.Name] = true
		if _, err := s.Group.Keyer(); err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", s.Name, err))
		}
		if s.GroupGlob != "" && !strings.Contains(s.Path, ingest.GroupPlaceholder) {
			errs = append(errs, fmt.Errorf("source %q: path must contain %s", s.Name, ingest.GroupPlaceholder))
		}
		for _, col := range s.Layout.Columns {
			if _, ok := categories[col.Category]; !ok {
				errs = append(errs, fmt.Errorf("source %q: column category %q is not declared", s.Name, col.Category))
			}
		}
		for _, m := range s.Layout.Measures {
			measures[m.Name] = true
		}
	}
	for _, m := range p.Measures {
		if !measures[m.Name] {
			errs = append(errs, fmt.Errorf("measure %q is not read by any source", m.Name))
		}
	}
	return errors.Join(errs...)
}

// Rules converts the categories to aggregation rules.
func (p *Profile) Rules() ([]aggregate.Rule, error) {
	rules := make([]aggregate.Rule, 0, len(p.Categories))
	for _, c := range p.Categories {
		r := c.Rule()
		rel, err := c.Relation()
		if err != nil {
			return nil, err
		}
		r.Relation = rel
		rules = append(rules, r)
	}
	return rules, nil
}

// Rule is the category's aggregation rule without its relation.
func (c Category) Rule() aggregate.Rule {
	return aggregate.Rule{Category: c.Name, Mode: c.Mode, TopN: c.TopN, Sep: c.Sep}
}

// Relation returns the category's specificity relation, nil when collapsing
// is off.
func (c Category) Relation() (resolve.Relation, error) {
	if !c.Collapse {
		return nil, nil
	}
	if c.SuffixPattern == "" {
		return resolve.NumericSuffix{}, nil
	}
	rel, err := resolve.NewSuffixPattern(c.SuffixPattern)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", c.Name, err)
	}
	return rel, nil
}

// SummaryHeader is the summary column title.
func (c Category) SummaryHeader() string {
	if c.Header != "" {
		return c.Header
	}
	return c.Name
}

// DetailColumn is the detail table column title.
func (c Category) DetailColumn() string {
	if c.DetailHeader != "" {
		return c.DetailHeader
	}
	return c.Name
}

// ClassList returns the class definitions of a collapsed matrix.
func (m MatrixSpec) ClassList() []matrix.Class {
	var out []matrix.Class
	if m.ClassPreset == "cazy" {
		out = append(out, matrix.CAZyClasses...)
	}
	for _, c := range m.Classes {
		out = append(out, matrix.Class{Name: c.Name, Prefixes: c.Prefixes})
	}
	return out
}

// Replace lists the categories overwritten by later sources.
func (p *Profile) Replace() map[string]bool {
	out := map[string]bool{}
	for _, c := range p.Categories {
		if c.Replace {
			out[c.Name] = true
		}
	}
	return out
}

// CategoryNames returns the declared categories in order.
func (p *Profile) CategoryNames() []string {
	out := make([]string, len(p.Categories))
	for i, c := range p.Categories {
		out[i] = c.Name
	}
	return out
}

// NeedsOntology reports whether any category splits by namespace.
func (p *Profile) NeedsOntology() bool {
	for _, c := range p.Categories {
		if c.Namespaces {
			return true
		}
	}
	return false
}

func headerOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// Group returns the group column title.
func (p *Profile) Group() string { return headerOr(p.GroupHeader, "Group") }

// Entity returns the entity column title.
func (p *Profile) Entity() string { return headerOr(p.EntityHeader, "Entity") }
