/*
Package cberr defines the router's error taxonomy (spec §7): transport,
auth, routing, server, and client errors. Sentinels are wrapped with
context via fmt.Errorf("...: %w", err) the way the rest of the module
wraps errors, so callers use errors.Is/errors.As rather than string
matching.
*/
package cberr
