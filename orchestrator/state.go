package orchestrator

import "fmt"

// Phase names a lifecycle state without its payload.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhasePreparing      Phase = "preparing"
	PhaseJailReady      Phase = "jail_ready"
	PhaseStarting       Phase = "starting"
	PhaseRunning        Phase = "running"
	PhaseNeedsPrivilege Phase = "needs_privilege"
	PhaseFailed         Phase = "failed"
)

// State is one of Idle, Preparing, JailReady, Starting, Running,
// NeedsPrivilege or Failed.
type State interface {
	Phase() Phase
	String() string
	isState()
}

// Idle is the state of a fresh session.
type Idle struct{}

// Preparing means a prepare request is outstanding.
type Preparing struct{}

// JailReady means the backend reported the jail as built.
type JailReady struct {
	RC     int
	Stdout string
	Stderr string
}

// Starting means a run request is outstanding.
type Starting struct{}

// Running means the backend started the command as RunID.
type Running struct {
	RunID string
}

// NeedsPrivilege means the command was not started because enforcement
// needs root. SudoCommand must be run by an operator.
type NeedsPrivilege struct {
	SudoCommand string
}

// Failed means the last attempt did not succeed. Err is one of
// *jail.InvalidPathError, *backend.RejectionError or *backend.TransportError.
type Failed struct {
	Detail string
	Err    error
}

func (Idle) Phase() Phase           { return PhaseIdle }
func (Preparing) Phase() Phase      { return PhasePreparing }
func (JailReady) Phase() Phase      { return PhaseJailReady }
func (Starting) Phase() Phase       { return PhaseStarting }
func (Running) Phase() Phase        { return PhaseRunning }
func (NeedsPrivilege) Phase() Phase { return PhaseNeedsPrivilege }
func (Failed) Phase() Phase         { return PhaseFailed }

func (Idle) String() string      { return "Idle" }
func (Preparing) String() string { return "Preparing..." }
func (JailReady) String() string { return "Jail prepared" }
func (Starting) String() string  { return "Starting..." }

func (s Running) String() string { return fmt.Sprintf("Started run: %s", s.RunID) }

func (s NeedsPrivilege) String() string {
	return fmt.Sprintf("Requires sudo: %s", s.SudoCommand)
}

func (s Failed) String() string { return s.Detail }

func (Idle) isState()           {}
func (Preparing) isState()      {}
func (JailReady) isState()      {}
func (Starting) isState()       {}
func (Running) isState()        {}
func (NeedsPrivilege) isState() {}
func (Failed) isState()         {}
