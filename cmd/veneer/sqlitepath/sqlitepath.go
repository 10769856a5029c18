// Package sqlitepath locates the SQLite database written by "veneer serve
// --sqlite" for commands that read it offline.
package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvVar overrides the database location.
const EnvVar = "VENEER_SQLITE"

// ResolveSQLitePath returns override when set, then $VENEER_SQLITE, then the
// first well-known database file that exists.
func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv(EnvVar)); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.New("could not find veneer SQLite database; pass --sqlite")
}

func sqliteCandidates() []string {
	candidates := []string{
		"veneer.db",
		filepath.Join(".veneer", "veneer.db"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".veneer", "veneer.db"))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "veneer", "veneer.db"))
	}

	return candidates
}
