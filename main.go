package main

import (
	"fmt"
	"os"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/cmd"
)

func main() {
	command := cmd.New()
	if err := command.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		os.Exit(1)
	}
}
