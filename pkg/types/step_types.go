package types

import "time"

type StepType string

const (
	StepExtraction     StepType = "extraction"
	StepNormalization  StepType = "normalization"
	StepMapping        StepType = "mapping"
	StepSearch         StepType = "search"
	StepSQLGeneration  StepType = "sql-generation"
	StepJSONGeneration StepType = "json-generation"
)

type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusSuccess   StepStatus = "success"
	StatusFailed    StepStatus = "failed"
	StatusCancelled StepStatus = "cancelled"
	// StatusSkipped is recorded for steps whose config has enabled=false.
	StatusSkipped StepStatus = "skipped"
)

// StepConfig is the persisted description of one workflow step. Exactly one of
// the operation blocks must be set, and it must match Type.
type StepConfig struct {
	ID             string   `yaml:"id" json:"id"`
	Type           StepType `yaml:"type" json:"type"`
	Name           string   `yaml:"name" json:"name"`
	Description    string   `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	OutputFilename string   `yaml:"output_filename,omitempty" json:"output_filename,omitempty"`

	Extraction     *ExtractionConfig     `yaml:"extraction,omitempty" json:"extraction,omitempty"`
	Normalization  *NormalizationConfig  `yaml:"normalization,omitempty" json:"normalization,omitempty"`
	Mapping        *MappingConfig        `yaml:"mapping,omitempty" json:"mapping,omitempty"`
	Search         *SearchConfig         `yaml:"search,omitempty" json:"search,omitempty"`
	SQLGeneration  *SQLGenerationConfig  `yaml:"sql,omitempty" json:"sql,omitempty"`
	JSONGeneration *JSONGenerationConfig `yaml:"json,omitempty" json:"json,omitempty"`
}

// IsEnabled reports whether the step should run. Steps are enabled unless
// explicitly disabled.
func (c StepConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Clone returns a deep copy of the config.
func (c StepConfig) Clone() StepConfig {
	out := c
	if c.Enabled != nil {
		enabled := *c.Enabled
		out.Enabled = &enabled
	}
	if c.Extraction != nil {
		ex := *c.Extraction
		ex.Columns = append([]string(nil), c.Extraction.Columns...)
		out.Extraction = &ex
	}
	if c.Normalization != nil {
		n := *c.Normalization
		n.Columns = append([]string(nil), c.Normalization.Columns...)
		n.Operations = append([]string(nil), c.Normalization.Operations...)
		out.Normalization = &n
	}
	if c.Mapping != nil {
		m := MappingConfig{Columns: make(map[string]string, len(c.Mapping.Columns)), KeepUnmapped: c.Mapping.KeepUnmapped}
		for k, v := range c.Mapping.Columns {
			m.Columns[k] = v
		}
		out.Mapping = &m
	}
	if c.Search != nil {
		s := *c.Search
		s.Conditions = append([]SearchCondition(nil), c.Search.Conditions...)
		out.Search = &s
	}
	if c.SQLGeneration != nil {
		sql := *c.SQLGeneration
		out.SQLGeneration = &sql
	}
	if c.JSONGeneration != nil {
		js := *c.JSONGeneration
		out.JSONGeneration = &js
	}
	return out
}

type ExtractionConfig struct {
	Columns          []string `yaml:"columns" json:"columns"`
	RemoveDuplicates bool     `yaml:"remove_duplicates,omitempty" json:"remove_duplicates,omitempty"`
}

type NormalizationConfig struct {
	// Columns limits normalization to the listed columns. Empty means all.
	Columns    []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Operations []string `yaml:"operations" json:"operations"`
}

type MappingConfig struct {
	// Columns maps source column names to target column names.
	Columns      map[string]string `yaml:"columns" json:"columns"`
	KeepUnmapped bool              `yaml:"keep_unmapped,omitempty" json:"keep_unmapped,omitempty"`
}

type SearchLogic string

const (
	LogicAnd SearchLogic = "AND"
	LogicOr  SearchLogic = "OR"
)

type SearchCondition struct {
	Column   string `yaml:"column" json:"column"`
	Operator string `yaml:"operator" json:"operator"`
	Value    string `yaml:"value,omitempty" json:"value"`
}

type SearchConfig struct {
	Conditions []SearchCondition `yaml:"conditions" json:"conditions"`
	Logic      SearchLogic       `yaml:"logic,omitempty" json:"logic,omitempty"`
}

type SQLGenerationConfig struct {
	TableName          string `yaml:"table_name" json:"table_name"`
	DatabaseType       string `yaml:"database_type" json:"database_type"`
	IncludeCreateTable bool   `yaml:"include_create_table,omitempty" json:"include_create_table,omitempty"`
	BatchSize          int    `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
}

type JSONGenerationConfig struct {
	PrettyPrint bool   `yaml:"pretty_print,omitempty" json:"pretty_print,omitempty"`
	Orient      string `yaml:"orient,omitempty" json:"orient,omitempty"`
}

// ValidationResult is the outcome of validating a single step config.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// StepOutput describes the file produced by a remote operation.
type StepOutput struct {
	DownloadURL string `json:"download_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}

type StepError struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// StepResult is the normalized outcome of one execution attempt, regardless of
// which remote endpoint the step called.
type StepResult struct {
	StepID     string         `json:"step_id"`
	StepType   StepType       `json:"step_type"`
	Status     StepStatus     `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     *StepOutput    `json:"output,omitempty"`
	Error      *StepError     `json:"error,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy of the result that shares no maps with the original.
func (r *StepResult) Clone() *StepResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Input != nil {
		out.Input = make(map[string]any, len(r.Input))
		for k, v := range r.Input {
			out.Input[k] = v
		}
	}
	if r.Output != nil {
		o := *r.Output
		out.Output = &o
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
