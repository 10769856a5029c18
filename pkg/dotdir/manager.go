// Package dotdir resolves the veneer state directory and the files kept in it.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".veneer"

	// EnvVar names a state directory that wins over ./.veneer and ~/.veneer.
	EnvVar = "VENEER_HOME"
)

// Files kept in the state directory.
const (
	ConfigFile      = "config.toml"
	CredentialsFile = "credentials.toml"
	SettingsFile    = "settings.json"
	TranscriptFile  = "transcript.json"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the state directory, creating it when
// missing. The first of these wins:
//  1. overrideDir (the --config-dir flag)
//  2. $VENEER_HOME
//  3. ./.veneer, when it exists
//  4. ~/.veneer
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating veneer directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// File returns the absolute path of name inside the state directory. The
// file itself need not exist.
func (m *Manager) File(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	local := filepath.Join(cwd, dirName)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}
