package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zoobzio/framez/plugins"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the available plugins and their parameters",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		heading := color.New(color.FgCyan, color.Bold)
		param := color.New(color.FgYellow)
		dim := color.New(color.FgHiBlack)

		for _, d := range plugins.Registry().Descriptors() {
			heading.Fprintf(out, "%s\n", d.Name)
			fmt.Fprintf(out, "  %s\n", d.Description)
			for _, p := range d.Schema {
				param.Fprintf(out, "    %-20s", p.Name)
				fmt.Fprintf(out, " %-9s", p.Type)
				if p.Default != nil {
					dim.Fprintf(out, " [%v]", p.Default)
				} else {
					dim.Fprintf(out, " [unset]")
				}
				fmt.Fprintf(out, " %s\n", p.Description)
			}
			fmt.Fprintln(out)
		}
	},
}
