package vars

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
)

// Environment is one named variable map, e.g. "staging" or "prod".
type Environment struct {
	ID        string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string            `json:"name" yaml:"name"`
	Variables map[string]string `json:"variables" yaml:"variables"`
}

type EnvironmentSet map[string]map[string]string

// LoadEnvironmentFile reads a YAML or JSON variable file. Two shapes
// are accepted: a map of environment names to variable maps, or a
// single flat variable map which gets named after the file.
func LoadEnvironmentFile(path string) (EnvironmentSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read environment file %s", path)
	}

	var nested map[string]map[string]string
	if err := yaml.Unmarshal(data, &nested); err == nil && len(nested) > 0 {
		set := make(EnvironmentSet, len(nested))
		for name, values := range nested {
			set[name] = values
		}
		return set, nil
	}

	var flat map[string]string
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse environment file %s", path)
	}
	name := environmentNameFromPath(path)
	return EnvironmentSet{name: flat}, nil
}

func environmentNameFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" {
		return "default"
	}
	return name
}

// Provider builds a resolver provider for the named environment in
// the set. Missing environments resolve nothing.
func (s EnvironmentSet) Provider(name string) Provider {
	values := s[name]
	if values == nil {
		values = map[string]string{}
	}
	return NewMapProvider(name, values)
}

// Names lists the environments sorted for stable menus and output.
func (s EnvironmentSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
