// Package controller binds user intent to a jailed-run session.
//
// A Controller holds the values a user edits (use-jail and enforce toggles,
// jail path, command) and forwards the two actions, PrepareJail and
// ApplyAndRun, to the orchestrator. It renders state but makes no decisions:
// validation and response interpretation live in the jail and orchestrator
// packages.
package controller
