package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/fixkme/rpckit/meta"
	"github.com/spf13/cobra"
)

// NewRoutesCommand creates the routes command
func NewRoutesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes <routes.json>",
		Short: "Print the contents of a generated route map file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rm, err := meta.LoadRouteMap(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tMETHOD\tKEY\tPAYLOAD")
			for _, service := range rm.Services() {
				routes := rm[service]
				for _, method := range routes.Methods() {
					r := routes[method]
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", service, method, r.Key, r.HasPayload)
				}
			}
			return w.Flush()
		},
	}
	return cmd
}
