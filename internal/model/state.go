package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBundleStateNotFound is returned when no state file exists for a model.
var ErrBundleStateNotFound = errors.New("model bundle state not found")

// BundleState tracks the installed and previous versions of one model.
type BundleState struct {
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version,omitempty"`
	InstalledAt     string `json:"installed_at,omitempty"`
}

func stateFilePath(modelsDir, name string) string {
	return filepath.Join(modelsDir, name+".state.json")
}

// LoadBundleState reads <models_dir>/<name>.state.json.
func LoadBundleState(modelsDir, name string) (BundleState, error) {
	modelsDir = strings.TrimSpace(modelsDir)
	if modelsDir == "" || strings.TrimSpace(name) == "" {
		return BundleState{}, errors.New("models dir or name is empty")
	}

	data, err := os.ReadFile(stateFilePath(modelsDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return BundleState{}, ErrBundleStateNotFound
		}
		return BundleState{}, fmt.Errorf("read bundle state: %w", err)
	}

	var state BundleState
	if err := json.Unmarshal(data, &state); err != nil {
		return BundleState{}, fmt.Errorf("decode bundle state: %w", err)
	}
	return state, nil
}

// SaveBundleState writes the state file atomically.
func SaveBundleState(modelsDir, name string, state BundleState) error {
	modelsDir = strings.TrimSpace(modelsDir)
	if modelsDir == "" || strings.TrimSpace(name) == "" {
		return errors.New("models dir or name is empty")
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	state.CurrentVersion = strings.TrimSpace(state.CurrentVersion)
	state.PreviousVersion = strings.TrimSpace(state.PreviousVersion)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle state: %w", err)
	}

	tmpFile, err := os.CreateTemp(modelsDir, name+".state.json.tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), stateFilePath(modelsDir, name)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
