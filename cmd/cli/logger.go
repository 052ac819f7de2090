package cli

import (
	"fmt"

	"github.com/arnavsurve/sheetflow/pkg/log"
	"github.com/arnavsurve/sheetflow/pkg/log/sinks"
	"github.com/arnavsurve/sheetflow/pkg/types"
	zlog "github.com/rs/zerolog/log"
)

// LogFlags are shared by every command that logs.
type LogFlags struct {
	LogLevel string `help:"Minimum level printed to the console (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
}

// commandLogger wires a router with a console sink and, when logPath is set, a JSON file sink. The
// zerolog global logger is pointed at the same router so package-level warnings end up in the same place.
type commandLogger struct {
	*log.ZerologAdapter
	router  *log.Router
	logPath string
}

func newCommandLogger(flags LogFlags, logPath string) (*commandLogger, error) {
	router := log.NewRouter()
	router.AddSink(sinks.NewConsoleSink(log.ParseLevel(flags.LogLevel)))

	if logPath != "" {
		fileSink, err := sinks.NewFileSink(logPath)
		if err != nil {
			return nil, fmt.Errorf("creating file log sink: %w", err)
		}
		router.AddSink(fileSink)
	}

	adapter := log.New(router, types.DebugLevel)
	zlog.Logger = adapter.Zerolog()

	return &commandLogger{
		ZerologAdapter: adapter,
		router:         router,
		logPath:        logPath,
	}, nil
}

func (l *commandLogger) Close() {
	l.Debug().Msg("Shutting down logger...")
	if err := l.router.Close(); err != nil {
		fmt.Printf("Error during log shutdown: %v\n", err)
	}
}
