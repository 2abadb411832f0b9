package commands

import "github.com/spf13/cobra"

// NewRootCommand assembles dashboardctl and its subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dashboardctl",
		Short: "Operator tooling for the attendance dashboard API",
		Long: `dashboardctl talks to the same database as the API server, configured through
the same .env file and environment variables.

  migrate  apply pending schema migrations
  seed     load the sample attendance data set
  logs     print a user's attendance log page`,
		SilenceUsage: true,
	}
	root.AddCommand(NewMigrateCommand())
	root.AddCommand(NewSeedCommand())
	root.AddCommand(NewLogsCommand())
	return root
}
