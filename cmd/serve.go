package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	cli "github.com/spf13/cobra"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/config"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/server"
)

type serveCommand struct {
	configFilePath string
}

// NewServeCommand initializes the command that starts the plugin server.
func NewServeCommand() *cli.Command {
	serve := &serveCommand{}

	cmd := &cli.Command{
		Use:   "serve",
		Short: "Start the notebook scheduling server",
		Example: heredoc.Doc(`
			dataproc-jupyter-plugin serve
			dataproc-jupyter-plugin serve -c ./plugin.yaml`),
		RunE: serve.RunE,
	}
	cmd.Flags().StringVarP(&serve.configFilePath, "config", "c", serve.configFilePath, "File path for server configuration")
	return cmd
}

func (s *serveCommand) RunE(_ *cli.Command, _ []string) error {
	conf, err := config.LoadPluginConfig(s.configFilePath)
	if err != nil {
		return err
	}

	pluginServer, err := server.New(conf)
	if err != nil {
		return fmt.Errorf("unable to create server: %w", err)
	}

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
		pluginServer.Shutdown()
	}()

	return pluginServer.Serve()
}
