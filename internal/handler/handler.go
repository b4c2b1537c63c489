// Package handler is the HTTP entry point after the router.
//
// Collection handlers turn requests into collection envelopes, run them and
// render the results; the health handler reports dependency status.
package handler
