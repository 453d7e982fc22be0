package cmd

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gogreen",
	Short: "reward greener trips with points",
	Long:  `gogreen records the routes people travel, scores how much CO2 they saved and keeps a running green score per user`,
}

func init() {
	RootCmd.AddCommand(serverCommand())
	RootCmd.AddCommand(migrateCommand())
	RootCmd.AddCommand(scoreCommand())
}
