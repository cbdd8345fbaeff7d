// Package nats is the NATS transport. Destinations join a queue group on the
// endpoint's subject, so several servers share the load; each conduit gets
// its own response inbox. Message metadata travels in NATS headers.
package nats
