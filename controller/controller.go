package controller

import (
	"context"
	"sync"

	"github.com/isdmx/jailrun/config"
	"github.com/isdmx/jailrun/jail"
	"github.com/isdmx/jailrun/orchestrator"
)

// Session is the part of *orchestrator.Orchestrator the controller uses.
type Session interface {
	State() orchestrator.State
	SudoCommand() string
	Current() (orchestrator.State, string)
	PrepareJail(ctx context.Context, cfg jail.Config) orchestrator.State
	ApplyAndRun(ctx context.Context, command string, cfg jail.Config, useJail, enforce bool) orchestrator.State
}

// Snapshot is a rendering of the controller at one point in time.
type Snapshot struct {
	Phase       orchestrator.Phase `json:"phase"`
	Status      string             `json:"status"`
	RunID       string             `json:"run_id,omitempty"`
	SudoCommand string             `json:"sudo_command,omitempty"`
	Detail      string             `json:"detail,omitempty"`
	UseJail     bool               `json:"use_jail"`
	Enforce     bool               `json:"enforce"`
	JailPath    string             `json:"jail_path"`
	Command     string             `json:"command"`
	PathWarning string             `json:"path_warning,omitempty"`
}

// Controller forwards user intent to a Session.
type Controller struct {
	session Session
	history *History

	mu       sync.RWMutex
	useJail  bool
	enforce  bool
	jailPath string
	command  string
}

// Option defines a functional option for Controller
type Option func(*Controller)

// WithJailPath sets the initial jail path.
func WithJailPath(path string) Option {
	return func(c *Controller) {
		c.jailPath = path
	}
}

// WithCommand sets the initial command.
func WithCommand(command string) Option {
	return func(c *Controller) {
		c.command = command
	}
}

// WithHistory attaches the status log the session records into.
func WithHistory(h *History) Option {
	return func(c *Controller) {
		c.history = h
	}
}

// New creates a Controller with both toggles off.
func New(session Session, opts ...Option) *Controller {
	c := &Controller{session: session}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a Controller seeded with the configured defaults.
func NewFromConfig(cfg *config.Config, session *orchestrator.Orchestrator, history *History) *Controller {
	return New(session,
		WithJailPath(cfg.Jail.DefaultPath),
		WithCommand(cfg.Jail.DefaultCommand),
		WithHistory(history),
	)
}

// State returns the session's lifecycle state.
func (c *Controller) State() orchestrator.State {
	return c.session.State()
}

// JailConfig returns the jail configuration a submit would use.
func (c *Controller) JailConfig() jail.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return jail.Config{Path: c.jailPath, EnforceRequested: c.enforce}
}

// UseJail reports whether runs are confined to the jail.
func (c *Controller) UseJail() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.useJail
}

// Enforce reports whether the backend is asked to enforce the jail.
func (c *Controller) Enforce() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enforce
}

// Command returns the command the next run will start.
func (c *Controller) Command() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.command
}

// SetUseJail toggles jail confinement for later runs.
func (c *Controller) SetUseJail(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useJail = enabled
}

// SetEnforce toggles the enforce flag sent with later runs.
func (c *Controller) SetEnforce(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enforce = enabled
}

// SetJailConfigPath replaces the jail path. It is not validated here.
func (c *Controller) SetJailConfigPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jailPath = path
}

// SetCommand replaces the command text.
func (c *Controller) SetCommand(command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.command = command
}

// PathWarning is the inline validation message for the current path. It is
// empty while the jail is disabled.
func (c *Controller) PathWarning() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pathWarning()
}

// pathWarning expects c.mu to be held.
func (c *Controller) pathWarning() string {
	if !c.useJail {
		return ""
	}
	return jail.Reason(jail.Validate(c.jailPath))
}

// PrepareJail forwards to the session with the current jail configuration.
func (c *Controller) PrepareJail(ctx context.Context) orchestrator.State {
	return c.session.PrepareJail(ctx, c.JailConfig())
}

// ApplyAndRun forwards to the session with the current inputs.
func (c *Controller) ApplyAndRun(ctx context.Context) orchestrator.State {
	c.mu.RLock()
	command, cfg := c.command, jail.Config{Path: c.jailPath, EnforceRequested: c.enforce}
	useJail, enforce := c.useJail, c.enforce
	c.mu.RUnlock()

	return c.session.ApplyAndRun(ctx, command, cfg, useJail, enforce)
}

// History returns the status log, or nil if none is attached.
func (c *Controller) History() []Entry {
	if c.history == nil {
		return nil
	}
	return c.history.Entries()
}

// Snapshot renders the controller and the session state together.
func (c *Controller) Snapshot() Snapshot {
	state, sudoCommand := c.session.Current()

	c.mu.RLock()
	snap := Snapshot{
		Phase:       state.Phase(),
		Status:      state.String(),
		SudoCommand: sudoCommand,
		UseJail:     c.useJail,
		Enforce:     c.enforce,
		JailPath:    c.jailPath,
		Command:     c.command,
		PathWarning: c.pathWarning(),
	}
	c.mu.RUnlock()

	switch s := state.(type) {
	case orchestrator.Running:
		snap.RunID = s.RunID
	case orchestrator.Failed:
		snap.Detail = s.Detail
	}

	return snap
}
