// Package reliability provides the retry policies and circuit breaker used by
// conduits and interceptors.
//
// Errors are classified by their fault code: client faults are never retried
// and do not count against a circuit, while transport, timeout and
// unavailable faults do.
//
//	cb := NewCircuitBreaker(
//	    WithFailureThreshold(5),
//	    WithTimeout(30 * time.Second),
//	)
//	if err := cb.Allow(); err != nil {
//	    return err
//	}
//	err := send()
//	cb.Record(err)
package reliability
