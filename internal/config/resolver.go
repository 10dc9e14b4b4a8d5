package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceProfile ValueSource = "profile"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ANNOTALLY_"

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	Profile    string

	CLIInput    string
	CLIOutput   string
	CLIDBPath   string
	CLIOntology string
	CLIXLSX     string
	CLIWorkers  int
}

type ResolvedConfig struct {
	ConfigPath  string   `json:"config_path"`
	Profile     *Profile `json:"-"`
	ProfileFrom string   `json:"profile_from"`

	InputDir  ResolvedValue `json:"input_dir"`
	OutputDir ResolvedValue `json:"output_dir"`
	DBPath    ResolvedValue `json:"db_path"`
	Ontology  ResolvedValue `json:"ontology"`
	XLSX      ResolvedValue `json:"xlsx"`
	Workers   ResolvedValue `json:"workers"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".annotally", "config.yaml")
}

// ResolveConfig loads the profile and resolves run settings with precedence
// default < config file < profile settings < env < CLI.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}
	out := ResolvedConfig{ConfigPath: path}

	apply(&out.OutputDir, ".", SourceDefault, "built-in default")
	apply(&out.Workers, "0", SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		applySettings(&out, *cfg, SourceConfig, path)
	}

	profile, from, err := LoadProfile(opts.Profile)
	if err != nil {
		return out, err
	}
	out.Profile = profile
	out.ProfileFrom = from
	applySettings(&out, profile.Settings, SourceProfile, from)

	applyEnv(&out.InputDir, EnvPrefix+"IN")
	applyEnv(&out.OutputDir, EnvPrefix+"OUT")
	applyEnv(&out.DBPath, EnvPrefix+"DB")
	applyEnv(&out.Ontology, EnvPrefix+"ONTOLOGY")
	applyEnv(&out.XLSX, EnvPrefix+"XLSX")
	applyEnv(&out.Workers, EnvPrefix+"WORKERS")

	apply(&out.InputDir, opts.CLIInput, SourceCLI, "--in")
	apply(&out.OutputDir, opts.CLIOutput, SourceCLI, "--out")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Ontology, opts.CLIOntology, SourceCLI, "--ontology")
	apply(&out.XLSX, opts.CLIXLSX, SourceCLI, "--xlsx")
	if opts.CLIWorkers > 0 {
		apply(&out.Workers, strconv.Itoa(opts.CLIWorkers), SourceCLI, "--workers")
	}

	for _, v := range []*ResolvedValue{&out.InputDir, &out.OutputDir, &out.DBPath, &out.Ontology, &out.XLSX} {
		if v.Value != "" {
			v.Value = expandUserPath(v.Value)
		}
	}
	return out, out.Validate()
}

// Validate checks the resolved settings before any input is read.
func (r ResolvedConfig) Validate() error {
	var errs []error
	if r.InputDir.Value == "" {
		errs = append(errs, errors.New("input directory is required (--in or "+EnvPrefix+"IN)"))
	} else if info, err := os.Stat(r.InputDir.Value); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("input directory %s (from %s) is not a directory", r.InputDir.Value, r.InputDir.Source))
	}
	if n, err := cast.ToIntE(r.Workers.Value); err != nil || n < 0 {
		errs = append(errs, fmt.Errorf("workers %q (from %s) must be a non-negative integer", r.Workers.Value, r.Workers.Source))
	}
	if r.Profile != nil && r.Profile.NeedsOntology() && r.Ontology.Value == "" {
		errs = append(errs, fmt.Errorf("profile %s splits GO namespaces and needs an ontology file (--ontology or %sONTOLOGY)",
			r.Profile.Name, EnvPrefix))
	}
	return errors.Join(errs...)
}

// WorkerCount returns the resolved worker limit; zero means one per CPU.
func (r ResolvedConfig) WorkerCount() int {
	return cast.ToInt(r.Workers.Value)
}

func applySettings(out *ResolvedConfig, s Settings, source ValueSource, from string) {
	apply(&out.InputDir, s.InputDir, source, from)
	apply(&out.OutputDir, s.OutputDir, source, from)
	apply(&out.DBPath, s.DBPath, source, from)
	apply(&out.Ontology, s.Ontology, source, from)
	apply(&out.XLSX, s.XLSX, source, from)
	if s.Workers > 0 {
		apply(&out.Workers, strconv.Itoa(s.Workers), source, from)
	}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg Settings
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
