// Package errors provides standardized error handling patterns for RefreshKit components.
//
// # Overview
//
// The errors package implements a three-class error classification system for the
// refresh pipeline: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification is what lets the fetcher decide whether another attempt is worth
// making without string-matching upstream error text: timeouts and network faults
// retry, client-fault statuses exhaust attempts immediately, and an open circuit
// breaker is never retried locally at all.
//
// # Error Taxonomy
//
// The fetch path distinguishes these conditions:
//
//   - ErrTimeout: the bounded attempt exceeded its deadline (transient)
//   - ErrNetwork: the transport could not reach the upstream (transient)
//   - StatusError: the upstream answered with a non-success status; 4xx is
//     invalid (never retried), 5xx is transient (retrying it is a deployment
//     policy decision)
//   - ErrCircuitOpen: the externally-owned breaker reports Open; surfaced as a
//     suspension, never retried locally
//   - ErrCacheMiss / ErrNoFallback: normal read-path signals, not faults
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if deadlinePassed {
//	    return errors.ErrTimeout
//	}
//
// Wrap errors with component context:
//
//	if err := store.Save(ctx, key, value); err != nil {
//	    return errors.WrapTransient(err, "FileStore", "Save", "write snapshot")
//	}
//
// Make retry decisions from classification rather than error text:
//
//	if err := attempt(); err != nil {
//	    if errors.IsTransient(err) {
//	        // worth another attempt
//	    }
//	    if errors.IsClientFault(err) {
//	        // the request is wrong; stop immediately
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing, debugging, and operational
// monitoring. Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function applies the format without forcing a class.
//
// # Classification Rules
//
// IsTransient, IsInvalid, and IsFatal first honor an explicit ClassifiedError
// created by the Wrap helpers, then a StatusError's fault direction, then the
// standard error variables, and finally fall back to conservative message
// pattern matching. Unknown errors classify as transient so a retry layer gets
// the chance to recover from conditions this package has never seen.
//
// All helpers compose with the standard library: ClassifiedError supports
// errors.Is and errors.As through its Unwrap chain, and StatusError is
// extracted with errors.As wherever it sits in a wrapped chain.
package errors
