package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/weave-ml/weave/logutil"
)

var (
	// Set via WEAVE_BACKEND in the environment
	Backend string
	// Set via WEAVE_DEBUG in the environment
	Debug bool
	// Set via WEAVE_NOPROGRESS in the environment
	NoProgress bool

	debugLevel int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"WEAVE_BACKEND":    {"WEAVE_BACKEND", Backend, "Array backend to run on (default \"simple\")"},
		"WEAVE_DEBUG":      {"WEAVE_DEBUG", Debug, "Show debug information (e.g. WEAVE_DEBUG=1, 2 enables trace)"},
		"WEAVE_NOPROGRESS": {"WEAVE_NOPROGRESS", NoProgress, "Do not show progress output"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// LogLevel maps WEAVE_DEBUG onto a slog level: unset is info, set is
// debug, 2 or higher is trace.
func LogLevel() slog.Level {
	switch {
	case debugLevel >= 2:
		return logutil.LevelTrace
	case Debug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// clean strips quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	Backend = "simple"

	LoadConfig()
}

func LoadConfig() {
	if debug := clean("WEAVE_DEBUG"); debug != "" {
		if n, err := strconv.Atoi(debug); err == nil {
			debugLevel = n
			Debug = n > 0
		} else if b, err := strconv.ParseBool(debug); err == nil {
			Debug = b
			debugLevel = 0
			if b {
				debugLevel = 1
			}
		} else {
			Debug = true
			debugLevel = 1
		}
	}

	if np := clean("WEAVE_NOPROGRESS"); np != "" {
		if b, err := strconv.ParseBool(np); err == nil {
			NoProgress = b
		}
	}

	if backend := clean("WEAVE_BACKEND"); backend != "" {
		Backend = backend
	}
}
