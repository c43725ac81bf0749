package cmd

import (
	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List available workflows",
	Long: `List every workflow draftsmith can run, grouped by where it was
found: the project's .draftsmith/workflows directory, the user's
~/.draftsmith/workflows directory, and the built-in set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listWorkflows()
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
}
