package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trieste/parley/cmd/gen"
	"github.com/trieste/parley/internal/meta"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley is a Diplomacy game server",
	Long: `Parley is a Diplomacy game server speaking the DAIDE
client-server protocol. Clients connect over TCP, are assigned a power
and play a full game through framed binary messages.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := meta.GetInfo()

		fmt.Printf("parley %s\n", info.Version)
		fmt.Printf("  build:     %s (%s)\n", info.Build, info.Branch)
		fmt.Printf("  built at:  %s\n", info.BuildTime)
		fmt.Printf("  platform:  %s\n", info.Platform)
		fmt.Printf("  go:        %s\n", info.GoVersion)
	},
}

func init() {
	rootCmd.AddCommand(StartCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
