// Package databinding converts between message bodies and the typed parts
// declared by a service contract.
//
// Part types are looked up by name in a TypeRegistry. UnmarshalInterceptor
// decodes inbound bodies, MarshalInterceptor encodes outbound parts, and
// SchemaValidationInterceptor checks bodies against the JSON schema attached
// to each part, which SchemaGenerator can derive from the Go type.
package databinding
