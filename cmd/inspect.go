package cmd

import (
	"fmt"

	"db-sync/internal/schema"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [tables...]",
	Short: "Show destination columns, triggers and non-deferrable foreign keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src, dst, err := openDataSources(ctx)
		if err != nil {
			return err
		}
		defer src.Close()
		defer dst.Close()

		srcProbe := schema.NewProbe(src.Dialect())
		dstProbe := schema.NewProbe(dst.Dialect())
		resolver := schema.NewCatalogResolver(src, srcProbe, dst, dstProbe)

		refs, err := resolver.Resolve(ctx, args)
		if err != nil {
			return err
		}

		columns, err := dstProbe.Columns(ctx, dst, refs)
		if err != nil {
			return err
		}
		triggers, err := dstProbe.Triggers(ctx, dst, refs)
		if err != nil {
			return err
		}
		constraints, err := dstProbe.NonDeferrableConstraints(ctx, dst, refs)
		if err != nil {
			return err
		}
		managed, err := dstProbe.IsManagedPlatform(ctx, dst)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Managed platform: %t\n", managed)
		for i, ref := range refs {
			fmt.Fprintf(out, "\n[%02d] %s\n", i+1, ref)
			for _, c := range columns[ref] {
				fmt.Fprintf(out, "    column     %-30s %s\n", c.Name, c.Type)
			}
			for _, t := range triggers[ref] {
				fmt.Fprintf(out, "    trigger    %-30s internal=%t enabled=%t integrity=%t\n", t.Name, t.Internal, t.Enabled, t.TiedToConstraint)
			}
			for _, name := range constraints[ref] {
				fmt.Fprintf(out, "    constraint %-30s not deferrable\n", name)
			}
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(inspectCmd)
}
