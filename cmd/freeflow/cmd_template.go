package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Christopher-Costa/freeflow/internal/config"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Output an example configuration file",
	Long:  "Print an annotated example freeflow configuration file to stdout.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(config.Template())
	},
}
