// Package backend provides the client side of the jail backend protocol.
//
// The backend is an opaque HTTP/JSON service with two operations: prepare,
// which builds a jail directory, and run, which starts a command, optionally
// inside that jail. This package defines the Backend interface, the closed
// set of outcomes each operation can produce, and an HTTP implementation.
//
// Transport-level failures (network errors, non-2xx statuses, malformed
// bodies) are returned as *TransportError. Application-level answers,
// including refusals, are returned as outcomes with a nil error.
//
// Usage:
//
//	client, err := backend.New(logger, cfg)
//	outcome, err := client.Run(ctx, backend.RunRequest{
//	    Command:  "./tests/infinite_loop",
//	    JailPath: "sandbox_jail",
//	    UseJail:  true,
//	})
package backend
