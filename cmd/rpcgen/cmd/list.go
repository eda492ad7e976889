package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/scan"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	var (
		root        string
		servicesDir string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered handlers without generating anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				root = scan.RootDir()
			}
			records, diags, err := scanAll(root, servicesDir)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tMETHOD\tKIND\tKEY\tHANDLER")
			for _, rec := range records {
				kind := "request"
				if rec.Kind == meta.KindEvent {
					kind = "event"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.Service, rec.Method, kind, meta.KeyString(rec.Key), rec.HandlerName)
			}
			w.Flush()
			if diags.Failed() {
				diags.Dump(os.Stderr)
				return fmt.Errorf("%d problem(s) found", len(diags.Items()))
			}
			return nil
		},
	}
	addScanFlags(cmd, &root, &servicesDir)
	return cmd
}
