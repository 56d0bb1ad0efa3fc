package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pagegate",
	Short: "PageGate encrypts gated content for static single-file sites",
	Long: `PageGate encrypts JSON content bundles under per-tier passwords and
one-time codes, producing opaque artifacts that can be embedded in a static
HTML page. Nothing gated ever appears in the page in plaintext.
Complete documentation is available at https://github.com/jmcleod/pagegate`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
