package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fixkme/rpckit/gen"
	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/scan"
	"github.com/spf13/cobra"
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	var (
		root        string
		servicesDir string
		outDir      string
		outPkg      string
		importBase  string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Scan handlers and generate client artifacts",
		Long: `Scan the services directory for annotated handlers, validate the whole
set and write the per-service client interfaces, the route map source and
routes.json. All problems are reported in one pass before failing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				root = scan.RootDir()
			}
			records, diags, err := scanAll(root, servicesDir)
			if err != nil {
				return err
			}
			if diags.Failed() {
				diags.Dump(os.Stderr)
				return fmt.Errorf("%d problem(s) found, nothing generated", len(diags.Items()))
			}
			g := gen.New(gen.Options{
				OutDir:     filepath.Join(root, outDir),
				OutPkg:     outPkg,
				ImportBase: importBase,
			})
			rm, err := g.Run(records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated clients for %d service(s)\n", len(rm))
			return nil
		},
	}
	addScanFlags(cmd, &root, &servicesDir)
	cmd.Flags().StringVarP(&outDir, "out", "o", "rpcclient", "output directory, relative to root")
	cmd.Flags().StringVar(&outPkg, "pkg", "rpcclient", "package name of the generated code")
	cmd.Flags().StringVar(&importBase, "import-base", "", "import path prefix of the service packages")
	return cmd
}

func addScanFlags(cmd *cobra.Command, root, servicesDir *string) {
	cmd.Flags().StringVar(root, "root", "", "workspace root (default $"+scan.RootEnv+" or cwd)")
	cmd.Flags().StringVarP(servicesDir, "services", "s", "services", "services directory, relative to root")
}

func scanAll(root, servicesDir string) ([]meta.HandlerRecord, *scan.Diagnostics, error) {
	s := scan.NewScanner(root, servicesDir)
	diags := &scan.Diagnostics{}
	mods, records, err := s.Scan(diags)
	if err != nil {
		return nil, nil, err
	}
	scan.Validate(mods, records, diags)
	return records, diags, nil
}
