package model

import (
	"fmt"
	"os"
	"path/filepath"
)

// Recognition modes chosen at startup.
const (
	ModeML       = "ml"
	ModeRules    = "rules_only"
	ModeDisabled = "disabled"
)

// DirLooksValid reports whether dir holds an export, tokenizer assets and
// label metadata.
func DirLooksValid(dir string) bool {
	if resolveModelPath(dir) == "" {
		return false
	}
	if !tokenizerAssetsPresent(dir) {
		return false
	}
	for _, name := range []string{"config.json", "label_map.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func tokenizerAssetsPresent(dir string) bool {
	for _, rel := range []string{
		"vocab.txt",
		filepath.Join("tokenizer", "vocab.txt"),
		"tokenizer.json",
		filepath.Join("tokenizer", "tokenizer.json"),
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err == nil {
			return true
		}
	}
	return false
}

// DecideFallback picks the recognition mode after a model load attempt. It is
// pure so the policy can be tested without onnxruntime.
func DecideFallback(hasModel, requireML, allowRules bool, loadErr error) (string, error) {
	if hasModel && loadErr == nil {
		return ModeML, nil
	}
	if loadErr == nil {
		loadErr = ErrModelUnavailable
	}
	if requireML {
		return "", fmt.Errorf("model required but not loaded: %w", loadErr)
	}
	if allowRules {
		return ModeRules, nil
	}
	return ModeDisabled, nil
}
