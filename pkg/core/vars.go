package core

import (
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// VarContext holds resolved input variables from the varfile.
type VarContext map[string]string

// varRegex is a package-level compiled regular expression for matching {{ varName }} placeholders.
var varRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9\._-]+)\s*\}\}`)

var envRegex = regexp.MustCompile(`^\s*\{\{\s*env\.([A-Za-z0-9_]+)\s*}}\s*$`)

// ResolveVarfile loads a YAML varfile (e.g. sfvars.yml), parses it, and resolves {{ env.NAME }} values.
func ResolveVarfile(path string) (VarContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading varfile %q: %w", path, err)
	}

	var rawVars map[string]string
	if err := yaml.Unmarshal(data, &rawVars); err != nil {
		return nil, fmt.Errorf("parsing varfile YAML from %q: %w", path, err)
	}

	resolvedCtx := make(VarContext, len(rawVars))
	for key, val := range rawVars {
		match := envRegex.FindStringSubmatch(val)
		if match == nil {
			resolvedCtx[key] = val
			continue
		}
		envVal, exists := os.LookupEnv(match[1])
		if !exists {
			log.Warn().Msgf("Environment variable %q not found for varfile key %q", match[1], key)
		}
		resolvedCtx[key] = envVal
	}
	return resolvedCtx, nil
}

// ApplyInputDefaults fills in declared defaults for inputs the varfile does not set.
func ApplyInputDefaults(def *Definition, varCtx VarContext) VarContext {
	out := make(VarContext, len(varCtx))
	for k, v := range varCtx {
		out[k] = v
	}
	for _, input := range def.Inputs {
		if _, exists := out[input.Name]; !exists && input.Default != "" {
			out[input.Name] = input.Default
		}
	}
	return out
}

// ResolveValue recursively resolves placeholders in strings nested inside maps and slices.
func ResolveValue(value any, resolver func(string) (string, error)) (any, error) {
	switch v := value.(type) {
	case string:
		return resolver(v)
	case map[string]any:
		// Keys are resolved too: mapping.columns uses source column names as keys.
		resolvedMap := make(map[string]any, len(v))
		for key, val := range v {
			resolvedKey, err := resolver(key)
			if err != nil {
				return nil, fmt.Errorf("resolving map key %q: %w", key, err)
			}
			if _, dup := resolvedMap[resolvedKey]; dup {
				return nil, fmt.Errorf("map key %q resolves to duplicate key %q", key, resolvedKey)
			}
			resolvedVal, err := ResolveValue(val, resolver)
			if err != nil {
				return nil, fmt.Errorf("resolving value of map key %q: %w", key, err)
			}
			resolvedMap[resolvedKey] = resolvedVal
		}
		return resolvedMap, nil
	case []any:
		resolvedSlice := make([]any, len(v))
		for i, item := range v {
			resolvedItem, err := ResolveValue(item, resolver)
			if err != nil {
				return nil, fmt.Errorf("resolving slice item at index %d: %w", i, err)
			}
			resolvedSlice[i] = resolvedItem
		}
		return resolvedSlice, nil
	default:
		// For other types (int, bool, etc.), return as is
		return v, nil
	}
}

// ResolveStepVariables returns a copy of cfg with every {{ var }} placeholder in its string fields
// replaced from vars. An undefined variable is an error.
func ResolveStepVariables(cfg StepConfig, vars VarContext) (StepConfig, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return StepConfig{}, fmt.Errorf("encoding step %q for resolution: %w", cfg.ID, err)
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return StepConfig{}, fmt.Errorf("decoding step %q for resolution: %w", cfg.ID, err)
	}

	resolved, err := ResolveValue(generic, func(s string) (string, error) {
		return ResolveStringWithContext(s, vars)
	})
	if err != nil {
		return StepConfig{}, fmt.Errorf("resolving variables for step %q: %w", cfg.ID, err)
	}

	raw, err = yaml.Marshal(resolved)
	if err != nil {
		return StepConfig{}, fmt.Errorf("re-encoding step %q: %w", cfg.ID, err)
	}
	var out StepConfig
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return StepConfig{}, fmt.Errorf("re-decoding step %q: %w", cfg.ID, err)
	}
	return out, nil
}

// ResolveStringWithContext is the core template resolution engine.
func ResolveStringWithContext(input string, vars VarContext) (string, error) {
	var firstErr error
	output := varRegex.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match
		}

		key := varRegex.FindStringSubmatch(match)[1]
		val, found := vars[key]
		if !found {
			firstErr = fmt.Errorf("undefined variable: %s", key)
			return match
		}
		return val
	})

	if firstErr != nil {
		return "", firstErr
	}
	return output, nil
}

// InjectVarsIntoDefinition returns a copy of def with every step's placeholders resolved.
func InjectVarsIntoDefinition(def *Definition, vars VarContext) (*Definition, error) {
	if def == nil {
		return nil, fmt.Errorf("injecting vars into nil workflow")
	}

	out := def.Clone()
	for i, step := range out.Steps {
		resolved, err := ResolveStepVariables(step, vars)
		if err != nil {
			return nil, err
		}
		out.Steps[i] = resolved
	}
	return &out, nil
}
