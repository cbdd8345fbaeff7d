// Package health reports the state of transports and servers over HTTP.
package health
