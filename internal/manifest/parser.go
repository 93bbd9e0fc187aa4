package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// varPattern matches {{ variable }} syntax.
var varPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// ParseFile parses a manifest from a YAML file.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	m.Path = path
	return m, nil
}

// Parse parses a manifest from YAML data, interpolates variables and
// validates the result.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest format: %w", err)
	}

	if err := m.interpolate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// interpolate replaces {{ var }} references in step commands and
// working directories with values from Vars.
func (m *Manifest) interpolate() error {
	for i, step := range m.Steps {
		cmd, err := m.interpolateString(step.Cmd)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		step.Cmd = cmd

		cwd, err := m.interpolateString(step.Cwd)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		step.Cwd = cwd
	}
	return nil
}

// interpolateString replaces {{ var }} patterns with their values.
func (m *Manifest) interpolateString(s string) (string, error) {
	var missing []string
	out := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSpace(varPattern.FindStringSubmatch(match)[1])
		if v, ok := m.Vars[name]; ok {
			return v
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("undefined variable: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
