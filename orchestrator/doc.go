// Package orchestrator owns the lifecycle of one jailed-run session.
//
// An Orchestrator drives the two-phase backend protocol: PrepareJail builds
// the jail, ApplyAndRun validates the jail configuration locally and asks the
// backend to start a command. Every backend answer is folded into a single
// State value, which only the Orchestrator mutates.
//
// A backend that cannot enforce a jail without root answers with a
// privilege-escalation command instead of running anything. That answer
// becomes the NeedsPrivilege state; the orchestrator reports the command and
// never executes it.
//
// Each request is tagged with an attempt number. When requests overlap, only
// the answer to the most recently issued one is applied; older answers are
// discarded.
package orchestrator
