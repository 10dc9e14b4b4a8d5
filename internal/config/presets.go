package config

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// PresetInfo is the listing entry of a built-in profile.
type PresetInfo struct {
	Name        string
	Description string
}

func presetBytes(name string) ([]byte, error) {
	b, err := presetFS.ReadFile("presets/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no profile file or preset named %q (presets: %s)",
			name, strings.Join(PresetNames(), ", "))
	}
	return b, nil
}

// PresetNames lists the built-in profiles, sorted.
func PresetNames() []string {
	entries, _ := fs.Glob(presetFS, "presets/*.yaml")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(e, "presets/"), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Presets returns name and description of every built-in profile.
func Presets() ([]PresetInfo, error) {
	var out []PresetInfo
	for _, name := range PresetNames() {
		b, err := presetBytes(name)
		if err != nil {
			return nil, err
		}
		var head struct {
			Description string `yaml:"description"`
		}
		if err := yaml.Unmarshal(b, &head); err != nil {
			return nil, fmt.Errorf("preset %s: %w", name, err)
		}
		out = append(out, PresetInfo{Name: name, Description: head.Description})
	}
	return out, nil
}
