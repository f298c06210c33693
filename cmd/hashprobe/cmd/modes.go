package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
)

func newModesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the supported corruption modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeModes(cmd.OutOrStdout())
		},
	}
}

func writeModes(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODE\tFAMILY\tPARAMETER")
	for _, id := range corrupt.Modes() {
		spec, err := corrupt.Lookup(id)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", id, spec.Family, spec.Param())
	}
	return tw.Flush()
}
