// Package cli holds the feedbackd command tree.
package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X .../cli.Version=...".
var Version = "dev"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:           "feedbackd",
		Short:         "Feedback system session service",
		Long:          "feedbackd serves login, session and admin endpoints plus the realtime channel used to push forced logouts.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFiles(envFiles)
		},
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading FEEDBACK_* settings")

	rootCmd.AddCommand(
		newServeCmd(),
		newHashPasswordCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadEnvFiles loads each file that exists. Variables already present in
// the environment win.
func loadEnvFiles(files []string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
