package steprunner

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arnavsurve/sheetflow/pkg/types"
)

// JSONField encodes v for a multipart form field.
func JSONField(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func BoolField(v bool) string {
	return strconv.FormatBool(v)
}

// PrefixedName synthesizes an output name like "extracted-report.xlsx".
func PrefixedName(prefix string, input *types.File) string {
	return prefix + "-" + input.Name
}

// SwapExt replaces the input's extension, e.g. "report.xlsx" -> "report.json".
func SwapExt(input *types.File, ext string) string {
	base := strings.TrimSuffix(input.Name, filepath.Ext(input.Name))
	if base == "" {
		base = "output"
	}
	return base + ext
}

// ForeignBlocks returns the yaml keys of operation blocks that do not belong to the step's own type.
func ForeignBlocks(cfg types.StepConfig) []string {
	var keys []string
	if cfg.Extraction != nil && cfg.Type != types.StepExtraction {
		keys = append(keys, "extraction")
	}
	if cfg.Normalization != nil && cfg.Type != types.StepNormalization {
		keys = append(keys, "normalization")
	}
	if cfg.Mapping != nil && cfg.Type != types.StepMapping {
		keys = append(keys, "mapping")
	}
	if cfg.Search != nil && cfg.Type != types.StepSearch {
		keys = append(keys, "search")
	}
	if cfg.SQLGeneration != nil && cfg.Type != types.StepSQLGeneration {
		keys = append(keys, "sql")
	}
	if cfg.JSONGeneration != nil && cfg.Type != types.StepJSONGeneration {
		keys = append(keys, "json")
	}
	return keys
}

// Validation collects error messages for a step config.
type Validation struct {
	errs []string
}

func (v *Validation) Add(msg string) {
	v.errs = append(v.errs, msg)
}

func (v *Validation) Result() types.ValidationResult {
	return types.ValidationResult{Valid: len(v.errs) == 0, Errors: v.errs}
}

func echoInput(input *types.File, fields map[string]string) map[string]any {
	echo := make(map[string]any, len(fields)+1)
	echo["file_name"] = input.Name
	for k, v := range fields {
		echo[k] = v
	}
	return echo
}

// collectMetadata keeps the operation-specific counts and flags from a response body.
func collectMetadata(body map[string]any) map[string]any {
	md := make(map[string]any)
	for k, v := range body {
		switch k {
		case "download_url", "filename", "file_name", "message", "status":
			continue
		}
		switch val := v.(type) {
		case float64, bool:
			md[k] = val
		case map[string]any:
			if k == "stats" || k == "metadata" {
				for kk, vv := range val {
					md[kk] = vv
				}
			}
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
