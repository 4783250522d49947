package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "face-identity",
	Short: "Resolve detected faces to known people",
	Long: `Face Identity decides which known person a detected face belongs to.
It compares face embeddings against per-person embedding banks stored in
PostgreSQL, reports each face as matched, ambiguous or unknown, and learns
from faces a human has confirmed.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadEnvFile)
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file with configuration overrides")
}

// loadEnvFile loads envFile into the environment. A missing default .env is
// fine; an explicitly named file that cannot be read is reported.
func loadEnvFile() {
	err := godotenv.Load(envFile)
	if err == nil {
		return
	}
	if rootCmd.PersistentFlags().Changed("env-file") || !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
	}
}
