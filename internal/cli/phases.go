package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/phase"
)

func newPhasesCmd(a *app) *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "phases",
		Short: "Print the configured phase orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := phase.NewRegistry(a.cfg.PhaseOptions()...)
			if err != nil {
				return err
			}

			var dirs []contracts.Direction
			switch direction {
			case "in":
				dirs = []contracts.Direction{contracts.Inbound}
			case "out":
				dirs = []contracts.Direction{contracts.Outbound}
			case "all", "":
				dirs = []contracts.Direction{contracts.Inbound, contracts.Outbound}
			default:
				return fmt.Errorf("invalid direction %q (allowed: in, out, all)", direction)
			}

			for i, d := range dirs {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printPhases(cmd.OutOrStdout(), d, reg.Phases(d))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "all", "direction to print: in, out or all")
	return cmd
}

func printPhases(w io.Writer, d contracts.Direction, phases []phase.Phase) {
	fmt.Fprintf(w, "%s (%d phases):\n", d, len(phases))
	for _, p := range phases {
		fmt.Fprintf(w, "  %3d  %s\n", p.Priority, p.Name)
	}
}
