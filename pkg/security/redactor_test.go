package security_test

import (
	"testing"

	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/arnavsurve/sheetflow/pkg/log"
	"github.com/arnavsurve/sheetflow/pkg/security"
	"github.com/arnavsurve/sheetflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apiKey    = "sk-live-4f9a2c"
	signedURL = "https://results.s3.amazonaws.com/run-7/mapped-contacts.xlsx?X-Amz-Credential=AKIAEXAMPLE%2F20260301&X-Amz-Security-Token=FwoGZXIvYXdz&X-Amz-Signature=9c1e0b7d&X-Amz-Expires=900"
	maskedURL = "https://results.s3.amazonaws.com/run-7/mapped-contacts.xlsx?X-Amz-Credential=********&X-Amz-Security-Token=********&X-Amz-Signature=********&X-Amz-Expires=900"
)

func TestRedactor_Redact(t *testing.T) {
	tests := []struct {
		name   string
		inputs []core.Input
		varCtx core.VarContext
		input  string
		want   string
	}{
		{
			name:  "api key in a header dump",
			input: "X-API-Key: " + apiKey,
			want:  "X-API-Key: ********",
		},
		{
			name:  "pre-signed download url",
			input: "Downloading step output from " + signedURL,
			want:  "Downloading step output from " + maskedURL,
		},
		{
			name:  "gcs style sig and token params",
			input: "https://api.example.com/downloads/out.json?sig=abc123&token=t0k&page=2",
			want:  "https://api.example.com/downloads/out.json?sig=********&token=********&page=2",
		},
		{
			name:   "secret input injected into a step config",
			inputs: []core.Input{{Name: "db_password", Secret: true}, {Name: "table"}},
			varCtx: core.VarContext{"db_password": "hunter2", "table": "contacts"},
			input:  `fields={"table_name":"contacts","password":"hunter2"}`,
			want:   `fields={"table_name":"contacts","password":"********"}`,
		},
		{
			name:   "api key containing a secret input is masked whole",
			inputs: []core.Input{{Name: "suffix", Secret: true}},
			varCtx: core.VarContext{"suffix": "4f9a2c"},
			input:  "key " + apiKey + " suffix 4f9a2c",
			want:   "key ******** suffix ********",
		},
		{
			name:   "non-secret inputs are left alone",
			inputs: []core.Input{{Name: "region"}},
			varCtx: core.VarContext{"region": "EMEA"},
			input:  "Filtering region EMEA",
			want:   "Filtering region EMEA",
		},
		{
			name:  "plain endpoint url is untouched",
			input: "POST https://api.example.com/map-columns",
			want:  "POST https://api.example.com/map-columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := security.NewRedactor(tt.inputs, tt.varCtx, apiKey)
			assert.Equal(t, tt.want, r.Redact(tt.input))
		})
	}
}

func TestRedactor_NilAndUnconfigured(t *testing.T) {
	var nilRedactor *security.Redactor
	assert.Equal(t, "X-API-Key: "+apiKey, nilRedactor.Redact("X-API-Key: "+apiKey))

	// Signed URL masking is opt-in on a hand-built Redactor.
	plain := &security.Redactor{Secrets: []string{apiKey}}
	assert.Equal(t, "********@"+signedURL, plain.Redact(apiKey+"@"+signedURL))
}

func TestNewRedactor(t *testing.T) {
	tests := []struct {
		name        string
		inputs      []core.Input
		varCtx      core.VarContext
		extra       []string
		wantSecrets []string
	}{
		{
			name:        "api key only",
			extra:       []string{apiKey},
			wantSecrets: []string{apiKey},
		},
		{
			name:        "no api key configured",
			extra:       []string{""},
			wantSecrets: nil,
		},
		{
			name:        "secret inputs plus api key",
			inputs:      []core.Input{{Name: "db_password", Secret: true}, {Name: "table"}},
			varCtx:      core.VarContext{"db_password": "hunter2", "table": "contacts"},
			extra:       []string{apiKey},
			wantSecrets: []string{"hunter2", apiKey},
		},
		{
			name:        "unset or empty secret inputs are skipped",
			inputs:      []core.Input{{Name: "db_password", Secret: true}, {Name: "token", Secret: true}},
			varCtx:      core.VarContext{"token": ""},
			wantSecrets: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := security.NewRedactor(tt.inputs, tt.varCtx, tt.extra...)
			assert.True(t, r.MaskSignedURLs)
			assert.ElementsMatch(t, tt.wantSecrets, r.Secrets)
		})
	}
}

type captureSink struct {
	events []*log.LogEvent
}

func (s *captureSink) Write(e *log.LogEvent) error {
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) Close() error { return nil }

func TestRedactor_ThroughRouter(t *testing.T) {
	sink := &captureSink{}
	router := log.NewRouter(sink)
	router.Redactor = security.NewRedactor(nil, nil, apiKey)
	logger := log.New(router, types.DebugLevel)

	logger.With().Str("step_id", "rename").Str("step_type", "mapping").Logger().
		Info().
		Str("url", signedURL).
		Interface("headers", map[string]string{"X-API-Key": apiKey}).
		Msgf("Handed %s to next step", signedURL)

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, "Handed "+maskedURL+" to next step", evt.Message)
	assert.Equal(t, maskedURL, evt.Fields["url"])
	assert.Equal(t, "rename", evt.Fields["step_id"])
	assert.Equal(t, "mapping", evt.Fields["step_type"])
	assert.Equal(t, map[string]any{"X-API-Key": "********"}, evt.Fields["headers"])
	assert.NotContains(t, evt.Message, "9c1e0b7d")
}
