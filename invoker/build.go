package invoker

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/databinding"
	"github.com/glimte/relay-go/service"
)

type buildConfig struct {
	version string
	schemas bool
	faults  map[string][]faultDecl
}

type faultDecl struct {
	name   string
	detail reflect.Type
}

// BuildOption configures BuildService
type BuildOption func(*buildConfig)

// WithVersion sets the service version
func WithVersion(version string) BuildOption {
	return func(c *buildConfig) {
		c.version = version
	}
}

// WithSchemas attaches a generated JSON schema to every message part
func WithSchemas() BuildOption {
	return func(c *buildConfig) {
		c.schemas = true
	}
}

// WithFault declares a named fault on an operation. detail is a sample of the
// error type the bean returns for it.
func WithFault(operation, faultName string, detail interface{}) BuildOption {
	return func(c *buildConfig) {
		if c.faults == nil {
			c.faults = make(map[string][]faultDecl)
		}
		var t reflect.Type
		if detail != nil {
			t = reflect.TypeOf(detail)
		}
		c.faults[operation] = append(c.faults[operation], faultDecl{name: faultName, detail: t})
	}
}

// BuildService reflects the exported methods of bean into a service contract
// and a dispatcher. Methods of the form
//
//	func(context.Context, *Req) (*Resp, error)
//	func(context.Context, *Req) error
//
// become request-response and one-way operations named after the method.
// Every operation gets an unwrapped view sharing its messages. Part types are
// registered in types under their Go type names.
func BuildService(name, namespace string, bean interface{}, types *databinding.TypeRegistry, opts ...BuildOption) (*service.ServiceInfo, *MethodDispatcher, error) {
	cfg := &buildConfig{version: "1.0.0"}
	for _, opt := range opts {
		opt(cfg)
	}

	if bean == nil {
		return nil, nil, contracts.NewConfigurationError("ServiceFactory", "Build", "bean cannot be nil")
	}
	beanType := reflect.TypeOf(bean)

	si := service.NewServiceInfo(name, namespace, cfg.version)
	dispatcher := NewMethodDispatcher(beanType)
	generator := databinding.NewSchemaGenerator()

	register := func(t reflect.Type) (string, error) {
		elem := t
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if err := types.RegisterReflect(elem.Name(), elem); err != nil {
			return "", err
		}
		return elem.Name(), nil
	}

	addPart := func(mi *service.MessageInfo, partName string, t reflect.Type) error {
		typeName, err := register(t)
		if err != nil {
			return err
		}
		part := mi.AddPart(partName, typeName)
		if cfg.schemas {
			schema, err := generator.Generate(t)
			if err != nil {
				return err
			}
			part.Schema = schema
		}
		return nil
	}

	for i := 0; i < beanType.NumMethod(); i++ {
		method := beanType.Method(i)
		if !isOperation(method.Type) {
			continue
		}

		op, err := si.Interface.AddOperation(method.Name)
		if err != nil {
			return nil, nil, err
		}
		if err := addPart(op.SetInput(method.Name+"Request"), "request", method.Type.In(2)); err != nil {
			return nil, nil, buildError(method.Name, err)
		}
		if method.Type.NumOut() == 2 {
			if err := addPart(op.SetOutput(method.Name+"Response"), "response", method.Type.Out(0)); err != nil {
				return nil, nil, buildError(method.Name, err)
			}
		}
		for _, decl := range cfg.faults[method.Name] {
			fi := op.AddFault(decl.name, decl.name+"Fault")
			if decl.detail == nil {
				continue
			}
			if err := addPart(fi.Message, "detail", decl.detail); err != nil {
				return nil, nil, buildError(method.Name, err)
			}
		}

		op.NewUnwrapped()
		dispatcher.Bind(method.Name, method)
	}

	if len(si.Interface.Operations()) == 0 {
		return nil, nil, contracts.NewConfigurationError("ServiceFactory", "Build",
			fmt.Sprintf("%s has no methods of the form func(context.Context, *Req) (*Resp, error)", beanType))
	}

	var unknown []string
	for opName := range cfg.faults {
		if _, ok := si.Interface.Operation(opName); !ok {
			unknown = append(unknown, opName)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, nil, contracts.NewConfigurationError("ServiceFactory", "Build",
			"faults declared for unknown operations: "+strings.Join(unknown, ", "))
	}

	return si, dispatcher, nil
}

func buildError(operation string, err error) error {
	return &contracts.ConfigurationError{
		Component: "ServiceFactory",
		Op:        "Build",
		Reason:    fmt.Sprintf("operation %s", operation),
		Err:       err,
	}
}

func isOperation(t reflect.Type) bool {
	// receiver, ctx, request
	if t.NumIn() != 3 || t.In(1) != contextType || !isStructPointer(t.In(2)) {
		return false
	}
	switch t.NumOut() {
	case 1:
		return t.Out(0) == errorType
	case 2:
		return isStructPointer(t.Out(0)) && t.Out(1) == errorType
	default:
		return false
	}
}

func isStructPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct
}
