// Package client talks to the tokenkeeper gRPC service on behalf of the CLI.
//
// GRPCClient keeps the current token pair in memory, attaches the access
// token to every call and, when the server reports "token expired",
// refreshes the pair once and retries the call. Transport failures are
// mapped to the sentinel errors in errors.go so callers can use errors.Is.
package client
