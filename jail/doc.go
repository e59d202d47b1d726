// Package jail holds the client-side policy for jail configuration.
//
// Validate is the gate applied before a jailed run request leaves the
// process; a path that fails it never reaches the backend.
package jail
