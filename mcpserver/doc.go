// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes one jailed-run session as a set of MCP
// tools: toggles and inputs (set_use_jail, set_enforce, set_jail_path,
// set_command), the two actions (prepare_jail, apply_and_run) and
// get_jail_state. Every tool answers with a JSON snapshot of the session.
//
// A privilege-escalation answer from the backend is reported through the
// sudo_command field and is never executed by the server.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, controller)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
