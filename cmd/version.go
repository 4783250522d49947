package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-identity/internal/config"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the active matching policy",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("face-identity %s (%s)\n", Version, runtime.Version())
		fmt.Printf("  Commit: %s\n", CommitSHA)
		fmt.Printf("  Built:  %s\n", BuildDate)

		m := config.Load().Matching
		fmt.Printf("  Policy: threshold %.4f, margin %.4f, single reference %.4f/%.4f, top %d\n",
			m.MatchThreshold, m.MinMargin, m.SingleReferenceThreshold, m.SingleReferenceMargin, m.TopN)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
