// cmd/server/main.go
package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Version: "indev",
	Use:     "codeduel",
	Short:   "Rated 1v1 coding duels",
	Long: `codeduel pairs players of similar rating, assigns both the same problem
and settles the duel with an Elo update.`,
	SilenceUsage: true,
}

var configPath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	// Running the bare binary serves.
	rootCmd.RunE = serveCmd.RunE
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(historianCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
