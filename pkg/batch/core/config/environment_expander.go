package config

import (
	"os"
	"strings"
)

// EnvironmentExpander expands environment variable placeholders in raw configuration.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands ${VAR}, $VAR and ${VAR:-default} from the process environment.
// Unset variables without a default expand to an empty string.
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

// NewOsEnvironmentExpander creates an expander over os.LookupEnv.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

// Expand implements EnvironmentExpander. It never returns an error.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return []byte(os.Expand(string(input), e.resolve)), nil
}

func (e *OsEnvironmentExpander) resolve(key string) string {
	name, def, hasDefault := strings.Cut(key, ":-")
	if v, ok := e.lookup(name); ok && (v != "" || !hasDefault) {
		return v
	}
	return def
}
