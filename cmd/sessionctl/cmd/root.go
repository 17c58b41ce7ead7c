package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aussiebroadwan/authsession/internal/app"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose = false
var workdir = ""

var (
	rootCmd = &cobra.Command{
		Use:   "sessionctl",
		Short: "Inspect and drive the persisted authentication session",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if workdir != "" {
				err := os.Chdir(workdir)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Failed to change working directory: %v\n", err)
					os.Exit(1)
				}
			}
			// A missing .env is fine; the environment may already be set.
			_ = godotenv.Load()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	persistentFlags := rootCmd.PersistentFlags()
	persistentFlags.StringVarP(&workdir, "workdir", "w", "", "working directory")
	persistentFlags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// withApp opens the application, runs fn and shuts down. Shutdown waits
// for logouts started by fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) {
	cfg := app.LoadConfig()
	if verbose {
		cfg.LogLevel = "debug"
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	cobra.CheckErr(err)

	runErr := fn(ctx, a)
	cobra.CheckErr(a.Shutdown())
	cobra.CheckErr(runErr)
}
