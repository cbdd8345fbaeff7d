// Package phase defines the named, totally ordered stages that inbound and
// outbound interceptor chains respect.
//
// A Registry is built once at startup and never reordered. Custom phases can
// be spliced into the defaults with WithInsertAfter; any inconsistency is
// reported as a *contracts.ConfigurationError before a chain is ever built.
//
//	reg, err := phase.NewRegistry(
//		phase.WithInsertAfter(contracts.Inbound, "audit", phase.PreLogical),
//	)
//	pos, err := reg.Position(contracts.Inbound, "audit")
package phase
