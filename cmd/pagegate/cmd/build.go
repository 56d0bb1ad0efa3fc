package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pagegate/artifact"
	"github.com/jmcleod/pagegate/build"
	bboltstorage "github.com/jmcleod/pagegate/storage/bbolt"
)

var (
	buildConfigPath string
	buildOutPath    string
	buildDataDir    string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Encrypt content bundles into an embeddable artifact",
	Long: `Reads the site config, encrypts every tier's content bundle under its
configured unlock methods, and writes the resulting artifact JSON. Generated
one-time codes are printed once to stdout and never stored.

A missing bundle or an unset master password aborts the build; there is no
fallback that could leave gated content out of the page or emit it in
plaintext.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildConfigPath, "config", "c", "pagegate.json", "Path to site config")
	buildCmd.Flags().StringVarP(&buildOutPath, "out", "o", "artifact.json", "Output artifact path")
	buildCmd.Flags().StringVar(&buildDataDir, "data-dir", "", "Directory for the build database (optional snapshot store)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadSiteConfig(buildConfigPath)
	if err != nil {
		return err
	}

	var opts []build.Option
	if cfg.Iterations > 0 {
		opts = append(opts, build.WithIterations(cfg.Iterations))
	}
	if cfg.CodeTTLHours > 0 {
		opts = append(opts, build.WithCodeTTL(time.Duration(cfg.CodeTTLHours)*time.Hour))
	}
	if cfg.CodeLength > 0 {
		opts = append(opts, build.WithCodeLength(cfg.CodeLength))
	}
	enc := build.New(opts...)

	tiers := make([]string, 0, len(cfg.Tiers))
	for name := range cfg.Tiers {
		tiers = append(tiers, name)
	}
	sort.Strings(tiers)

	var reqs []build.Request
	for _, name := range tiers {
		b, err := cfg.loadBundle(name)
		if err != nil {
			return err
		}
		pw, hasMaster, err := cfg.masterPassword(name)
		if err != nil {
			return err
		}
		if hasMaster {
			reqs = append(reqs, build.Request{
				Tier:     artifact.Tier(name),
				Method:   artifact.MethodMaster,
				Bundle:   b,
				Password: pw,
			})
		}
		if cfg.Tiers[name].OneTimeCode {
			reqs = append(reqs, build.Request{
				Tier:   artifact.Tier(name),
				Method: artifact.MethodOneTime,
				Bundle: b,
			})
		}
	}

	result, err := enc.Build(reqs)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	data, err := result.Artifact.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(buildOutPath, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}

	if buildDataDir != "" {
		if err := snapshotArtifact(buildDataDir, result.Artifact.BuildID, data); err != nil {
			return err
		}
	}

	fmt.Printf("Build %s: %d tier(s) written to %s\n", result.Artifact.BuildID, len(result.Artifact.Tiers), buildOutPath)
	for _, name := range tiers {
		code, ok := result.Codes[artifact.Tier(name)]
		if !ok {
			continue
		}
		fmt.Printf("One-time code for tier %q: %s (expires %s)\n",
			name, code.Code, code.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func snapshotArtifact(dataDir, buildID string, data []byte) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(dataDir+"/pagegate.db", nil)
	if err != nil {
		return fmt.Errorf("failed to open build database: %w", err)
	}
	defer repo.Close()
	if err := repo.PutArtifact(buildID, data); err != nil {
		return fmt.Errorf("failed to snapshot artifact: %w", err)
	}
	return nil
}
