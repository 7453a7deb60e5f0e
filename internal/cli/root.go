// Package cli implements the nerctl command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/config"
)

var version = "dev"

// configPath is the persistent --config flag.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "nerctl",
	Short: "Tokenize text and extract named entities",
	Long: `nerctl runs the nerapp pipeline from the command line: word tokenization,
named entity recognition, and model bundle management.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "nerapp.yaml", "Path to nerapp config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
