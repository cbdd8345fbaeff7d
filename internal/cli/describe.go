package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glimte/relay-go/bus"
	"github.com/glimte/relay-go/service"
)

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the inventory service contract as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := bus.New(bus.WithLogger(a.logger))
			if err != nil {
				return err
			}
			si, err := a.contract(b)
			if err != nil {
				return err
			}
			if err := service.Validate(si); err != nil {
				return fmt.Errorf("invalid contract: %w", err)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(service.Describe(si)); err != nil {
				return fmt.Errorf("encode description: %w", err)
			}
			return enc.Close()
		},
	}
}
