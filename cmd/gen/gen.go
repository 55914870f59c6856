package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generators for parley documentation",
	Long:  `Generators for parley documentation`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
