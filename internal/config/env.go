package config

import (
	"os"
	"strings"
)

const (
	defaultPython          = "python3"
	defaultInferenceScript = "inference.py"
	defaultHTTPAddr        = "127.0.0.1:8080"
	defaultCORSOrigins     = "http://localhost:3000,http://localhost:5173"
)

// Runtime is process-level configuration read from the environment.
// None of it is persisted; front-end flags may override individual fields.
type Runtime struct {
	Python          string
	InferenceScript string
	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	CORSOrigins     []string
}

// LoadRuntime reads Runtime from the process environment.
func LoadRuntime() Runtime {
	return RuntimeFromEnv(os.Getenv)
}

// RuntimeFromEnv reads Runtime through getenv, falling back to defaults for unset keys.
func RuntimeFromEnv(getenv func(string) string) Runtime {
	lookup := func(key, fallback string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return fallback
	}

	return Runtime{
		Python:          lookup("MVSEP_PYTHON", defaultPython),
		InferenceScript: lookup("MVSEP_INFERENCE_SCRIPT", defaultInferenceScript),
		LogLevel:        lookup("MVSEP_LOG_LEVEL", "info"),
		LogFormat:       lookup("MVSEP_LOG_FORMAT", "text"),
		HTTPAddr:        lookup("MVSEP_HTTP_ADDR", defaultHTTPAddr),
		CORSOrigins:     splitOrigins(lookup("CORS_ORIGINS", defaultCORSOrigins)),
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
