package backend

import (
	"context"
)

// Response status values understood by the client.
const (
	StatusOK       = "ok"
	StatusNeedSudo = "need_sudo"
)

// PrepareRequest is the body of the prepare operation.
type PrepareRequest struct {
	JailPath string `json:"jailPath"`
}

// RunRequest is the body of the run operation.
type RunRequest struct {
	Command  string `json:"command"`
	JailPath string `json:"jailPath"`
	UseJail  bool   `json:"useJail"`
	Enforce  bool   `json:"enforce"`
}

// Backend is the collaborator that builds jails and runs commands.
type Backend interface {
	Prepare(ctx context.Context, req PrepareRequest) (PrepareOutcome, error)
	Run(ctx context.Context, req RunRequest) (RunOutcome, error)
}

// RunOutcome is one of Started, NeedsPrivilege or Rejected.
type RunOutcome interface {
	runOutcome()
}

// PrepareOutcome is one of Prepared or Rejected.
type PrepareOutcome interface {
	prepareOutcome()
}

// Started reports that the backend accepted the command and began executing it.
type Started struct {
	RunID string
}

// NeedsPrivilege reports that enforcement requires privileges the backend
// will not acquire itself. The command was not executed; SudoCommand is the
// exact command line an operator has to run out-of-band.
type NeedsPrivilege struct {
	SudoCommand string
}

// Prepared reports a successfully built jail. RC, Stdout and Stderr are
// whatever the backend chose to include about its preparation step.
type Prepared struct {
	RC     int
	Stdout string
	Stderr string
}

// Rejected reports that the backend answered but declined the request.
type Rejected struct {
	Detail string
}

func (Started) runOutcome()        {}
func (NeedsPrivilege) runOutcome() {}
func (Rejected) runOutcome()       {}

func (Prepared) prepareOutcome() {}
func (Rejected) prepareOutcome() {}
