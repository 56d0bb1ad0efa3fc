package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pagegate/artifact"
	"github.com/jmcleod/pagegate/build"
	"github.com/jmcleod/pagegate/internal/uuid"
	"github.com/jmcleod/pagegate/storage"
	bboltstorage "github.com/jmcleod/pagegate/storage/bbolt"
)

// issueLogKeep bounds the issuance log; older records are dropped.
const issueLogKeep = 20

var (
	otpConfigPath   string
	otpArtifactPath string
	otpDataDir      string
)

var otpCmd = &cobra.Command{
	Use:   "otp [tier]",
	Short: "Rotate a tier's one-time code",
	Long: `Generates a fresh one-time code for the given tier, re-encrypts the
tier's content bundle under it, and rewrites the artifact in place. The
previous code stops working immediately. The master method, if configured,
is untouched.

The new code is printed once to stdout. Only a hash of it is kept in the
issuance log.`,
	Args: cobra.ExactArgs(1),
	RunE: runOTP,
}

func init() {
	rootCmd.AddCommand(otpCmd)
	otpCmd.Flags().StringVarP(&otpConfigPath, "config", "c", "pagegate.json", "Path to site config")
	otpCmd.Flags().StringVarP(&otpArtifactPath, "artifact", "a", "artifact.json", "Artifact to rewrite")
	otpCmd.Flags().StringVar(&otpDataDir, "data-dir", "./data", "Directory for the issuance log")
}

func runOTP(cmd *cobra.Command, args []string) error {
	tier := args[0]

	cfg, err := loadSiteConfig(otpConfigPath)
	if err != nil {
		return err
	}
	b, err := cfg.loadBundle(tier)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(otpArtifactPath)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	art, err := artifact.Decode(data)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", otpArtifactPath, err)
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

	code, err := enc.RotateCode(art, artifact.Tier(tier), b)
	if err != nil {
		return fmt.Errorf("rotating code for tier %q: %w", tier, err)
	}

	out, err := art.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(otpArtifactPath, out, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}

	if err := logIssue(otpDataDir, tier, code); err != nil {
		return err
	}

	fmt.Printf("One-time code for tier %q: %s\n", tier, code.Code)
	fmt.Printf("Expires: %s\n", code.ExpiresAt.Format(time.RFC3339))
	return nil
}

func logIssue(dataDir, tier string, code build.IssuedCode) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(dataDir+"/pagegate.db", nil)
	if err != nil {
		return fmt.Errorf("failed to open issuance log: %w", err)
	}
	defer repo.Close()

	rec := storage.IssueRecord{
		ID:        uuid.New(),
		Tier:      tier,
		CodeHash:  storage.HashCode(code.Code),
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: code.ExpiresAt,
	}
	if err := repo.AppendIssue(rec); err != nil {
		return fmt.Errorf("recording issuance: %w", err)
	}
	if err := repo.PruneIssues(issueLogKeep); err != nil {
		return fmt.Errorf("pruning issuance log: %w", err)
	}
	return nil
}
