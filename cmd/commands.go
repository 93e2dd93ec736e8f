package cmd

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	cli "github.com/spf13/cobra"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/config"
)

// New constructs the root command housing all sub commands.
func New() *cli.Command {
	cmd := &cli.Command{
		Use:   "dataproc-jupyter-plugin",
		Short: "Notebook scheduling engine for Dataproc and Vertex AI",
		Long: heredoc.Doc(`
			dataproc-jupyter-plugin bridges a notebook UI to Google Cloud:
			it schedules notebooks as Airflow DAGs on Cloud Composer or as
			Vertex AI notebook execution schedules.`),
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cli.Command {
	return &cli.Command{
		Use:   "version",
		Short: "Print the configuration schema version",
		RunE: func(cmd *cli.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "config version %d\n", config.Defaults().Version)
			return nil
		},
	}
}
