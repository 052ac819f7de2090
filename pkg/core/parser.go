package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func LoadDefinitionFromFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file %q: %w", path, err)
	}

	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("workflow file %q: %w", path, err)
	}
	return def, nil
}

func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow YAML: %w", err)
	}

	if err := ValidateDefinitionStructure(&def); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	return &def, nil
}

// MarshalDefinition encodes a definition in the same YAML layout ParseDefinition reads.
func MarshalDefinition(def *Definition) ([]byte, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encoding workflow YAML: %w", err)
	}
	return data, nil
}
