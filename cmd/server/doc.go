// Package main is the entry point for the jailrun MCP server.
//
// The server exposes a single jailed-run session over the Model Context
// Protocol. It forwards requests to a jail backend over HTTP/JSON: preparing
// a jail directory and running a command, optionally restricted to it. When
// the backend needs root to enforce the jail it returns a sudo command, which
// the server reports and never executes.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
