package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/jailrun/backend"
	"github.com/isdmx/jailrun/jail"
)

// ValidationPrefix precedes the policy reason in a local validation failure.
const ValidationPrefix = "Validation error: "

// Observer is called after every applied transition.
type Observer func(prev, next State)

// Orchestrator drives one session against a backend.
type Orchestrator struct {
	logger    *zap.Logger
	backend   backend.Backend
	sessionID string
	observers []Observer

	mu          sync.Mutex
	state       State
	sudoCommand string
	attempt     uint64
}

// Option defines a functional option for Orchestrator
type Option func(*Orchestrator)

// WithObserver registers fn to be told about every applied transition.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, fn)
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// New creates an Orchestrator in the Idle state.
func New(logger *zap.Logger, b backend.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   b,
		sessionID: uuid.NewString(),
		state:     Idle{},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.logger = logger.Named("orchestrator").With(zap.String("session_id", o.sessionID))

	return o
}

// SessionID identifies this session in logs.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SudoCommand returns the privilege-escalation command reported by the most
// recent run attempt, or "" if there is none.
func (o *Orchestrator) SudoCommand() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sudoCommand
}

// Current returns the lifecycle state and the sudo command as of the same
// transition.
func (o *Orchestrator) Current() (State, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.sudoCommand
}

// PrepareJail asks the backend to build the jail described by cfg and
// returns the resulting state. It does not consult the use-jail flag.
func (o *Orchestrator) PrepareJail(ctx context.Context, cfg jail.Config) State {
	attempt := o.begin(Preparing{}, false)
	log := o.logger.With(zap.Uint64("attempt", attempt), zap.String("jail_path", cfg.Path))

	outcome, err := o.backend.Prepare(ctx, backend.PrepareRequest{JailPath: cfg.Path})

	var next State
	if err != nil {
		log.Warn("prepare request failed", zap.Error(err))
		next = Failed{Detail: backend.Detail(err), Err: err}
	} else {
		switch out := outcome.(type) {
		case backend.Prepared:
			next = JailReady{RC: out.RC, Stdout: out.Stdout, Stderr: out.Stderr}
		case backend.Rejected:
			log.Warn("prepare rejected", zap.String("detail", out.Detail))
			next = Failed{Detail: out.Detail, Err: &backend.RejectionError{Op: "prepare", Detail: out.Detail}}
		default:
			next = unknownOutcome("prepare", outcome)
		}
	}

	return o.complete(attempt, next)
}

// ApplyAndRun asks the backend to run command and returns the resulting
// state. When useJail is set the jail path is validated first; an invalid
// path fails the attempt without contacting the backend. The command itself
// is passed through unchecked.
func (o *Orchestrator) ApplyAndRun(ctx context.Context, command string, cfg jail.Config, useJail, enforce bool) State {
	if useJail {
		if err := jail.Validate(cfg.Path); err != nil {
			failed := Failed{Detail: ValidationPrefix + jail.Reason(err), Err: err}
			attempt := o.begin(failed, false)
			o.logger.Info("jail path rejected locally",
				zap.Uint64("attempt", attempt),
				zap.String("jail_path", cfg.Path),
				zap.Error(err))
			return failed
		}
	}

	attempt := o.begin(Starting{}, true)
	log := o.logger.With(
		zap.Uint64("attempt", attempt),
		zap.String("jail_path", cfg.Path),
		zap.Bool("use_jail", useJail),
		zap.Bool("enforce", enforce))

	outcome, err := o.backend.Run(ctx, backend.RunRequest{
		Command:  command,
		JailPath: cfg.Path,
		UseJail:  useJail,
		Enforce:  enforce,
	})

	var next State
	if err != nil {
		log.Warn("run request failed", zap.Error(err))
		next = Failed{Detail: backend.Detail(err), Err: err}
	} else {
		switch out := outcome.(type) {
		case backend.Started:
			next = Running{RunID: out.RunID}
		case backend.NeedsPrivilege:
			log.Info("backend requires privilege escalation", zap.String("sudo_command", out.SudoCommand))
			next = NeedsPrivilege{SudoCommand: out.SudoCommand}
		case backend.Rejected:
			log.Warn("run rejected", zap.String("detail", out.Detail))
			next = Failed{Detail: out.Detail, Err: &backend.RejectionError{Op: "run", Detail: out.Detail}}
		default:
			next = unknownOutcome("run", outcome)
		}
	}

	return o.complete(attempt, next)
}

// begin starts a new attempt, superseding any outstanding one, and moves
// to state.
func (o *Orchestrator) begin(state State, clearSudo bool) uint64 {
	o.mu.Lock()
	o.attempt++
	attempt := o.attempt
	if clearSudo {
		o.sudoCommand = ""
	}
	prev := o.state
	o.state = state
	o.mu.Unlock()

	o.notify(attempt, prev, state)
	return attempt
}

// complete applies the answer to attempt unless a newer attempt has begun,
// and returns the current state either way.
func (o *Orchestrator) complete(attempt uint64, next State) State {
	o.mu.Lock()
	if attempt != o.attempt {
		current := o.state
		latest := o.attempt
		o.mu.Unlock()

		o.logger.Debug("discarding stale response",
			zap.Uint64("attempt", attempt),
			zap.Uint64("latest_attempt", latest),
			zap.String("discarded_phase", string(next.Phase())))
		return current
	}

	prev := o.state
	o.state = next
	if np, ok := next.(NeedsPrivilege); ok {
		o.sudoCommand = np.SudoCommand
	}
	o.mu.Unlock()

	o.notify(attempt, prev, next)
	return next
}

func (o *Orchestrator) notify(attempt uint64, prev, next State) {
	o.logger.Info("state transition",
		zap.Uint64("attempt", attempt),
		zap.String("from", string(prev.Phase())),
		zap.String("to", string(next.Phase())))

	for _, fn := range o.observers {
		fn(prev, next)
	}
}

func unknownOutcome(op string, outcome any) State {
	detail := fmt.Sprintf("unrecognized %s outcome %T", op, outcome)
	return Failed{Detail: detail, Err: &backend.RejectionError{Op: op, Detail: detail}}
}
