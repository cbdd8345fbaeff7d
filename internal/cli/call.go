package cli

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	relay "github.com/glimte/relay-go"
	"github.com/glimte/relay-go/config"
	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/databinding"
	"github.com/glimte/relay-go/internal/demo"
	"github.com/glimte/relay-go/service"
)

func newCallCmd(a *app) *cobra.Command {
	var tf transportFlags

	cmd := &cobra.Command{
		Use:   "call <operation> [json-part...]",
		Short: "Invoke an inventory operation and print the response",
		Long: `Invoke an inventory operation. Each argument after the operation is the
JSON body of one input part. With the local transport the service is started
in process first.`,
		Example: `  relayctl call Reserve '{"sku":"widget","quantity":2}'
  relayctl call Level '{"sku":"widget"}' --transport nats --address relay.demo`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tf.apply(cmd, a.cfg); err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := a.newStack(ctx)
			if err != nil {
				return err
			}
			defer st.bus.Shutdown(ctx)

			var si *service.ServiceInfo
			if a.cfg.Transport.Kind == config.TransportLocal {
				server, err := a.publish(ctx, st.bus)
				if err != nil {
					return err
				}
				si = server.Endpoint().Service()
			} else if si, err = a.contract(st.bus); err != nil {
				return err
			}

			op, ok := si.Interface.Operation(args[0])
			if !ok {
				return fmt.Errorf("unknown operation %q (available: %s)", args[0], operationNames(si))
			}
			parts, err := decodeParts(st.bus.Types(), op, args[1:])
			if err != nil {
				return err
			}

			client, err := relay.Connect(ctx, st.bus, si, relay.WithClientOptions(a.cfg.ClientOptions(demo.ServiceName)...))
			if err != nil {
				return err
			}
			result, err := client.Invoke(ctx, op.Name, parts...)
			if err != nil {
				return describeFault(op.Name, err)
			}

			out := cmd.OutOrStdout()
			if op.OneWay() {
				_, err := fmt.Fprintln(out, "sent")
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if len(result) == 1 {
				return enc.Encode(result[0])
			}
			return enc.Encode(result)
		},
	}
	tf.register(cmd)
	return cmd
}

// decodeParts unmarshals one JSON document per input part into the
// registered part type
func decodeParts(types *databinding.TypeRegistry, op *service.OperationInfo, raw []string) ([]interface{}, error) {
	if op.Input == nil {
		return nil, nil
	}
	if len(raw) != len(op.Input.Parts) {
		return nil, fmt.Errorf("%s takes %d part(s), got %d", op.Name, len(op.Input.Parts), len(raw))
	}

	parts := make([]interface{}, 0, len(raw))
	for i, part := range op.Input.Parts {
		t, err := types.Get(part.TypeName)
		if err != nil {
			return nil, err
		}
		v := reflect.New(t)
		if err := json.Unmarshal([]byte(raw[i]), v.Interface()); err != nil {
			return nil, fmt.Errorf("decode part %s: %w", part.Name, err)
		}
		parts = append(parts, v.Interface())
	}
	return parts, nil
}

func describeFault(operation string, err error) error {
	fault := contracts.AsFault(err)
	if fault.Name == "" || fault.Detail == nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	detail, merr := json.Marshal(fault.Detail)
	if merr != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return fmt.Errorf("%s: %w (detail: %s)", operation, err, detail)
}

func operationNames(si *service.ServiceInfo) string {
	ops := si.Interface.Operations()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	return strings.Join(names, ", ")
}
