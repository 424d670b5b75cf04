// Package yaml reads the repository configuration file.
package yaml

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/ochairo/prgate/internal/domain/entities"
)

// DefaultConfigFile is looked up in the workspace root
const DefaultConfigFile = ".prgate.yml"

// yamlConfig represents the raw YAML structure
type yamlConfig struct {
	// scalar values of any YAML type, coerced to strings
	Inputs   map[string]interface{} `yaml:"inputs"`
	Severity yamlSeverity           `yaml:"severity"`
}

type yamlSeverity struct {
	Default   string            `yaml:"default"`
	Overrides map[string]string `yaml:"overrides"`
}

// ConfigParser parses .prgate.yml files
type ConfigParser struct{}

// NewConfigParser creates a new YAML parser
func NewConfigParser() *ConfigParser {
	return &ConfigParser{}
}

// LoadFile parses filePath. A missing file yields the built-in configuration.
func (p *ConfigParser) LoadFile(filePath string) (*entities.ProjectConfig, error) {
	//nolint:gosec // G304: filePath is the configuration file chosen by the user
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return p.Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return p.Parse(data)
}

// Parse parses YAML bytes into a ProjectConfig
func (p *ConfigParser) Parse(data []byte) (*entities.ProjectConfig, error) {
	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	inputs := make(map[string]string, len(raw.Inputs))
	for name, value := range raw.Inputs {
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, fmt.Errorf("input %q must be a scalar: %w", name, err)
		}
		inputs[strings.ToLower(name)] = s
	}

	severity, err := convertSeverity(raw.Severity)
	if err != nil {
		return nil, err
	}

	return &entities.ProjectConfig{Inputs: inputs, Severity: severity}, nil
}

func convertSeverity(ys yamlSeverity) (entities.SeverityDefaults, error) {
	var fallback entities.Severity
	if ys.Default != "" {
		s, ok := entities.ParseSeverity(ys.Default)
		if !ok {
			return entities.SeverityDefaults{}, fmt.Errorf("invalid default severity %q", ys.Default)
		}
		fallback = s
	}

	overrides := make(map[string]entities.Severity, len(ys.Overrides))
	for id, level := range ys.Overrides {
		s, ok := entities.ParseSeverity(level)
		if !ok {
			return entities.SeverityDefaults{}, fmt.Errorf("invalid severity %q for %s", level, id)
		}
		overrides[id] = s
	}

	return entities.DefaultSeverityDefaults().Merge(fallback, overrides), nil
}
