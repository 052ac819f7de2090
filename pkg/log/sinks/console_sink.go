package sinks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/log"
	"github.com/arnavsurve/sheetflow/pkg/types"
	"github.com/fatih/color"
)

type ConsoleSink struct {
	out      io.Writer
	minLevel types.Level
}

func NewConsoleSink(minLevel types.Level) *ConsoleSink {
	return &ConsoleSink{out: color.Output, minLevel: minLevel}
}

// NewConsoleSinkTo writes to w instead of stdout. Colours follow fatih/color's global setting.
func NewConsoleSinkTo(w io.Writer, minLevel types.Level) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{out: w, minLevel: minLevel}
}

func (c *ConsoleSink) MinLevel() types.Level {
	return c.minLevel
}

var levelColorMap = map[types.Level]*color.Color{
	types.DebugLevel: color.New(color.FgCyan),
	types.InfoLevel:  color.New(color.FgGreen),
	types.WarnLevel:  color.New(color.FgYellow),
	types.ErrorLevel: color.New(color.FgRed),
	types.FatalLevel: color.New(color.FgRed, color.Bold),
}

var statusColorMap = map[string]*color.Color{
	string(types.StatusSuccess):   color.New(color.FgGreen),
	string(types.StatusFailed):    color.New(color.FgRed),
	string(types.StatusCancelled): color.New(color.FgYellow),
	string(types.StatusSkipped):   color.New(color.FgWhite),
}

func (c *ConsoleSink) Write(event *log.LogEvent) error {
	stepID := getStringField(event.Fields, "step_id")
	stepType := getStringField(event.Fields, "step_type")
	status := getStringField(event.Fields, "status")
	url := getStringField(event.Fields, "url")
	errorMsg := getStringField(event.Fields, "error")
	msg := event.Message

	levelFmt := color.New(color.FgWhite).SprintFunc()
	if lc, ok := levelColorMap[event.Level]; ok {
		levelFmt = lc.SprintFunc()
	}
	timestampFmt := color.New(color.FgWhite).SprintFunc()

	stepLabel := stepID
	if stepLabel == "" {
		stepLabel = "workflow"
	}
	if stepType != "" {
		stepLabel = fmt.Sprintf("%s/%s", stepLabel, stepType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s %s] %s: ",
		levelFmt(strings.ToUpper(levelToString(event.Level))),
		timestampFmt(event.Timestamp.Format(time.RFC3339)),
		color.CyanString(stepLabel),
	)
	if status != "" {
		sc := color.New(color.FgWhite)
		if known, ok := statusColorMap[status]; ok {
			sc = known
		}
		fmt.Fprintf(&b, "[%s] ", sc.Sprint(status))
	}

	switch {
	case msg != "" && errorMsg != "":
		fmt.Fprintf(&b, "%s: %s", msg, color.RedString(errorMsg))
	case msg != "":
		b.WriteString(msg)
	case errorMsg != "":
		b.WriteString(color.RedString(errorMsg))
	default:
		fieldsStr, _ := json.MarshalIndent(event.Fields, "", "  ")
		b.Write(fieldsStr)
	}
	if url != "" {
		fmt.Fprintf(&b, " %s", color.BlueString(url))
	}

	_, err := fmt.Fprintln(c.out, b.String())
	return err
}

// Helper to safely get string field from LogEvent.Fields
func getStringField(fields map[string]any, key string) string {
	if val, ok := fields[key]; ok {
		if strVal, isStr := val.(string); isStr {
			return strVal
		}
	}
	return ""
}

// Helper to convert types.Level to string
func levelToString(l types.Level) string {
	switch l {
	case types.DebugLevel:
		return "debug"
	case types.InfoLevel:
		return "info"
	case types.WarnLevel:
		return "warn"
	case types.ErrorLevel:
		return "error"
	case types.FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

func (c *ConsoleSink) Close() error {
	return nil // Console doesn't need closing
}
