// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and JAILRUN_* environment variables. It
// covers the MCP server transport, the location of the jail backend, the
// initial session values and logging.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)
package config
