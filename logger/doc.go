// Package logger provides structured logging capabilities.
//
// The logger package builds the application's zap logger. Output defaults
// to stderr so that it never interleaves with the MCP stdio transport;
// logging.output redirects it to stdout (http transport only) or a file.
//
// Usage:
//
//	logger, err := logger.New("production", "info", logger.WithOutput("/var/log/jailrun.log"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("jail prepared", zap.String("jail_path", path))
package logger
