package logger

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Output formats accepted by Configure.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LoggingConfigSpec is the logging section of the client config, declared
// here so config can depend on logger and not the reverse.
type LoggingConfigSpec struct {
	Level  string
	Format string
	// CommonFields are attached to every record, sorted by key.
	CommonFields map[string]string
}

// Configure rebuilds DefaultLogger from cfg. It does nothing when cfg is nil
// or a handler was installed with SetLogger.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil {
		return nil
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var base slog.Handler
	switch cfg.Format {
	case FormatJSON:
		base = slog.NewJSONHandler(logOutput, opts)
	case FormatText, "":
		base = slog.NewTextHandler(logOutput, opts)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	static := make([]slog.Attr, 0, len(cfg.CommonFields))
	for _, k := range slices.Sorted(maps.Keys(cfg.CommonFields)) {
		static = append(static, slog.String(k, cfg.CommonFields[k]))
	}

	mu.Lock()
	defer mu.Unlock()
	if customHandler == nil {
		DefaultLogger = slog.New(newScrubHandler(base, static...))
	}
	return nil
}
