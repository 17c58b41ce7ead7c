package cmd

import (
	"fmt"

	"github.com/aussiebroadwan/authsession/internal/app"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sessionctl %s\n", app.BuildVersion)
		fmt.Println("Working directory:", workdir)
	},
}
