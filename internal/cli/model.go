package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/model"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect and manage model bundles",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the configured model and how it would load",
	Args:  cobra.NoArgs,
	RunE:  runModelInfo,
}

var modelVerifyCmd = &cobra.Command{
	Use:   "verify [dir]",
	Short: "Check a bundle's files against its manifest",
	Long: `Re-hashes every file listed in manifest.json. When manifest.sig is present
and a public key is configured, the signature is checked too.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModelVerify,
}

var modelPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download a model bundle into the models directory",
	Args:  cobra.NoArgs,
	RunE:  runModelPull,
}

var (
	pullManifestURL  string
	pullSignatureURL string
	pullBaseURL      string
	pullToken        string
	pullTimeout      time.Duration
	publicKey        string
)

func init() {
	modelVerifyCmd.Flags().StringVar(&publicKey, "public-key", "", "Base64 ed25519 key (default: model.manifest_public_key)")

	modelPullCmd.Flags().StringVar(&pullManifestURL, "manifest-url", "", "URL of the bundle manifest.json")
	modelPullCmd.Flags().StringVar(&pullSignatureURL, "signature-url", "", "URL of manifest.sig")
	modelPullCmd.Flags().StringVar(&pullBaseURL, "base-url", "", "Base URL for bundle files (default: manifest directory)")
	modelPullCmd.Flags().StringVar(&pullToken, "token", "", "Bearer token for the bundle host")
	modelPullCmd.Flags().DurationVar(&pullTimeout, "timeout", 5*time.Minute, "Download timeout")
	modelPullCmd.Flags().StringVar(&publicKey, "public-key", "", "Base64 ed25519 key (default: model.manifest_public_key)")
	_ = modelPullCmd.MarkFlagRequired("manifest-url")

	modelCmd.AddCommand(modelInfoCmd)
	modelCmd.AddCommand(modelVerifyCmd)
	modelCmd.AddCommand(modelPullCmd)
	rootCmd.AddCommand(modelCmd)
}

func runModelInfo(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := filepath.Join(cfg.Model.ModelsDir, cfg.Model.Name)

	cmd.Printf("Model: %s\n", cfg.Model.Name)
	cmd.Printf("Directory: %s\n", dir)
	cmd.Printf("Bundle present: %t\n", model.DirLooksValid(dir))

	state, err := model.LoadBundleState(cfg.Model.ModelsDir, cfg.Model.Name)
	switch {
	case err == nil:
		cmd.Printf("Installed version: %s\n", state.CurrentVersion)
		if state.PreviousVersion != "" {
			cmd.Printf("Previous version: %s\n", state.PreviousVersion)
		}
		if state.InstalledAt != "" {
			cmd.Printf("Installed at: %s\n", state.InstalledAt)
		}
	case errors.Is(err, model.ErrBundleStateNotFound):
		cmd.Println("Installed version: none")
	default:
		return fmt.Errorf("read bundle state: %w", err)
	}

	pipeline, err := loadPipeline(cfg)
	if err != nil {
		cmd.Printf("Mode: unavailable (%v)\n", err)
		return nil
	}
	defer pipeline.Close()
	cmd.Printf("Mode: %s\n", pipeline.Mode)
	cmd.Printf("Labels: %v\n", pipeline.Labels())
	return nil
}

func runModelVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := filepath.Join(cfg.Model.ModelsDir, cfg.Model.Name)
	if len(args) == 1 {
		dir = args[0]
	}
	key := publicKey
	if key == "" {
		key = cfg.Model.ManifestPublicKey
	}

	report, err := model.Verify(dir, key)
	if err != nil {
		return fmt.Errorf("verify %s: %w", dir, err)
	}
	cmd.Printf("Bundle %s OK: model=%s version=%s files=%d signature=%t\n",
		dir, report.Manifest.Model, report.Manifest.Version, len(report.Manifest.Files), report.SignatureChecked)
	return nil
}

func runModelPull(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	key := publicKey
	if key == "" {
		key = cfg.Model.ManifestPublicKey
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dir, err := model.Install(ctx, model.InstallOptions{
		ModelsDir:    cfg.Model.ModelsDir,
		Name:         cfg.Model.Name,
		ManifestURL:  pullManifestURL,
		SignatureURL: pullSignatureURL,
		FileBaseURL:  pullBaseURL,
		Token:        pullToken,
		PublicKey:    key,
		Timeout:      pullTimeout,
	})
	if err != nil {
		return fmt.Errorf("pull %s: %w", cfg.Model.Name, err)
	}
	cmd.Printf("Installed %s into %s\n", cfg.Model.Name, dir)
	return nil
}
