package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/jailrun/backend"
	"github.com/isdmx/jailrun/jail"
)

// mockBackend implements backend.Backend for testing
type mockBackend struct {
	prepareFn func(ctx context.Context, req backend.PrepareRequest) (backend.PrepareOutcome, error)
	runFn     func(ctx context.Context, req backend.RunRequest) (backend.RunOutcome, error)

	prepareCalls atomic.Int32
	runCalls     atomic.Int32

	mu          sync.Mutex
	runRequests []backend.RunRequest
}

func (m *mockBackend) Prepare(ctx context.Context, req backend.PrepareRequest) (backend.PrepareOutcome, error) {
	m.prepareCalls.Add(1)
	if m.prepareFn == nil {
		return backend.Prepared{}, nil
	}
	return m.prepareFn(ctx, req)
}

func (m *mockBackend) Run(ctx context.Context, req backend.RunRequest) (backend.RunOutcome, error) {
	m.runCalls.Add(1)
	m.mu.Lock()
	m.runRequests = append(m.runRequests, req)
	m.mu.Unlock()
	if m.runFn == nil {
		return backend.Started{RunID: "run-1"}, nil
	}
	return m.runFn(ctx, req)
}

func (m *mockBackend) calls() int {
	return int(m.prepareCalls.Load() + m.runCalls.Load())
}

func runReturns(outcome backend.RunOutcome, err error) func(context.Context, backend.RunRequest) (backend.RunOutcome, error) {
	return func(context.Context, backend.RunRequest) (backend.RunOutcome, error) {
		return outcome, err
	}
}

type recorder struct {
	mu          sync.Mutex
	transitions [][2]State
}

func (r *recorder) observe(prev, next State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, [2]State{prev, next})
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := make([]Phase, 0, len(r.transitions))
	for _, tr := range r.transitions {
		phases = append(phases, tr[1].Phase())
	}
	return phases
}

func TestNew(t *testing.T) {
	t.Run("StartsIdle", func(t *testing.T) {
		o := New(zaptest.NewLogger(t), &mockBackend{})
		assert.Equal(t, Idle{}, o.State())
		assert.Empty(t, o.SudoCommand())
		assert.NotEmpty(t, o.SessionID())
	})

	t.Run("SessionIDOption", func(t *testing.T) {
		o := New(zaptest.NewLogger(t), &mockBackend{}, WithSessionID("session-a"))
		assert.Equal(t, "session-a", o.SessionID())
	})

	t.Run("SessionIDsAreUnique", func(t *testing.T) {
		a := New(zaptest.NewLogger(t), &mockBackend{})
		b := New(zaptest.NewLogger(t), &mockBackend{})
		assert.NotEqual(t, a.SessionID(), b.SessionID())
	})
}

func TestPrepareJail(t *testing.T) {
	ctx := context.Background()
	cfg := jail.Config{Path: "sandbox_jail"}

	t.Run("Success", func(t *testing.T) {
		var gotPath string
		mock := &mockBackend{
			prepareFn: func(_ context.Context, req backend.PrepareRequest) (backend.PrepareOutcome, error) {
				gotPath = req.JailPath
				return backend.Prepared{RC: 0, Stdout: "ok\n"}, nil
			},
		}
		rec := &recorder{}
		o := New(zaptest.NewLogger(t), mock, WithObserver(rec.observe))

		state := o.PrepareJail(ctx, cfg)
		assert.Equal(t, JailReady{Stdout: "ok\n"}, state)
		assert.Equal(t, state, o.State())
		assert.Equal(t, "sandbox_jail", gotPath)
		assert.Equal(t, []Phase{PhasePreparing, PhaseJailReady}, rec.phases())
	})

	t.Run("Idempotent", func(t *testing.T) {
		mock := &mockBackend{}
		o := New(zaptest.NewLogger(t), mock)

		assert.Equal(t, JailReady{}, o.PrepareJail(ctx, cfg))
		assert.Equal(t, JailReady{}, o.PrepareJail(ctx, cfg))
		assert.Equal(t, int32(2), mock.prepareCalls.Load())
		assert.Empty(t, o.SudoCommand())
	})

	t.Run("InvalidPathIsNotCheckedLocally", func(t *testing.T) {
		mock := &mockBackend{}
		o := New(zaptest.NewLogger(t), mock)

		o.PrepareJail(ctx, jail.Config{Path: "/"})
		assert.Equal(t, int32(1), mock.prepareCalls.Load())
	})

	t.Run("TransportError", func(t *testing.T) {
		transportErr := &backend.TransportError{
			Op:     "prepare",
			Detail: "dial tcp 127.0.0.1:8000: connect: connection refused",
			Err:    errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"),
		}
		mock := &mockBackend{
			prepareFn: func(context.Context, backend.PrepareRequest) (backend.PrepareOutcome, error) {
				return nil, transportErr
			},
		}
		o := New(zaptest.NewLogger(t), mock)

		state := o.PrepareJail(ctx, cfg)
		failed, ok := state.(Failed)
		require.True(t, ok, "expected Failed, got %T", state)
		assert.Contains(t, failed.Detail, "connection refused")
		assert.True(t, errors.Is(failed.Err, backend.ErrTransport))
	})

	t.Run("Rejected", func(t *testing.T) {
		mock := &mockBackend{
			prepareFn: func(context.Context, backend.PrepareRequest) (backend.PrepareOutcome, error) {
				return backend.Rejected{Detail: "debootstrap missing"}, nil
			},
		}
		o := New(zaptest.NewLogger(t), mock)

		state := o.PrepareJail(ctx, cfg)
		failed, ok := state.(Failed)
		require.True(t, ok)
		assert.Equal(t, "debootstrap missing", failed.Detail)
		assert.True(t, errors.Is(failed.Err, backend.ErrRejected))
	})

	t.Run("RetryAfterFailure", func(t *testing.T) {
		var n atomic.Int32
		mock := &mockBackend{
			prepareFn: func(context.Context, backend.PrepareRequest) (backend.PrepareOutcome, error) {
				if n.Add(1) == 1 {
					return nil, &backend.TransportError{Op: "prepare", Detail: "timeout"}
				}
				return backend.Prepared{}, nil
			},
		}
		o := New(zaptest.NewLogger(t), mock)

		assert.Equal(t, PhaseFailed, o.PrepareJail(ctx, cfg).Phase())
		assert.Equal(t, JailReady{}, o.PrepareJail(ctx, cfg))
	})
}

func TestApplyAndRunValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		path   string
		detail string
	}{
		{"Empty", "", "Validation error: Path cannot be empty"},
		{"Whitespace", "   ", "Validation error: Path cannot be empty"},
		{"Root", "/", "Validation error: Using / as jail is forbidden"},
		{"PaddedRoot", " / ", "Validation error: Using / as jail is forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockBackend{}
			rec := &recorder{}
			o := New(zaptest.NewLogger(t), mock, WithObserver(rec.observe))

			state := o.ApplyAndRun(ctx, "./tests/infinite_loop", jail.Config{Path: tt.path}, true, true)

			failed, ok := state.(Failed)
			require.True(t, ok)
			assert.Equal(t, tt.detail, failed.Detail)
			assert.True(t, errors.Is(failed.Err, jail.ErrInvalidPath))
			assert.Equal(t, 0, mock.calls())
			assert.Equal(t, []Phase{PhaseFailed}, rec.phases())
		})
	}

	t.Run("JailDisabledSkipsValidation", func(t *testing.T) {
		for _, path := range []string{"", "   ", "/"} {
			mock := &mockBackend{}
			o := New(zaptest.NewLogger(t), mock)

			state := o.ApplyAndRun(ctx, "ls", jail.Config{Path: path}, false, false)
			assert.Equal(t, Running{RunID: "run-1"}, state)
			require.Len(t, mock.runRequests, 1)
			assert.Equal(t, backend.RunRequest{Command: "ls", JailPath: path}, mock.runRequests[0])
		}
	})

	t.Run("EmptyCommandIsForwarded", func(t *testing.T) {
		mock := &mockBackend{}
		o := New(zaptest.NewLogger(t), mock)

		o.ApplyAndRun(ctx, "", jail.Config{Path: "sandbox_jail"}, true, false)
		require.Len(t, mock.runRequests, 1)
		assert.Equal(t, "", mock.runRequests[0].Command)
	})
}

func TestApplyAndRunOutcomes(t *testing.T) {
	ctx := context.Background()
	cfg := jail.Config{Path: "sandbox_jail", EnforceRequested: true}

	t.Run("Started", func(t *testing.T) {
		mock := &mockBackend{runFn: runReturns(backend.Started{RunID: "abc123"}, nil)}
		rec := &recorder{}
		o := New(zaptest.NewLogger(t), mock, WithObserver(rec.observe))

		state := o.ApplyAndRun(ctx, "./tests/infinite_loop", cfg, true, false)
		assert.Equal(t, Running{RunID: "abc123"}, state)
		assert.Equal(t, []Phase{PhaseStarting, PhaseRunning}, rec.phases())
		assert.Equal(t, backend.RunRequest{
			Command:  "./tests/infinite_loop",
			JailPath: "sandbox_jail",
			UseJail:  true,
			Enforce:  false,
		}, mock.runRequests[0])
	})

	t.Run("NeedsPrivilege", func(t *testing.T) {
		sudo := "sudo chroot sandbox_jail ./tests/infinite_loop"
		mock := &mockBackend{runFn: runReturns(backend.NeedsPrivilege{SudoCommand: sudo}, nil)}
		rec := &recorder{}
		o := New(zaptest.NewLogger(t), mock, WithObserver(rec.observe))

		state := o.ApplyAndRun(ctx, "./tests/infinite_loop", cfg, true, true)
		assert.Equal(t, NeedsPrivilege{SudoCommand: sudo}, state)
		assert.Equal(t, sudo, o.SudoCommand())
		assert.NotContains(t, rec.phases(), PhaseRunning)
		assert.Equal(t, int32(1), mock.runCalls.Load())
	})

	t.Run("NextAttemptClearsSudoCommand", func(t *testing.T) {
		mock := &mockBackend{runFn: runReturns(backend.NeedsPrivilege{SudoCommand: "sudo x"}, nil)}
		o := New(zaptest.NewLogger(t), mock)

		o.ApplyAndRun(ctx, "x", cfg, true, true)
		require.Equal(t, "sudo x", o.SudoCommand())

		mock.runFn = func(context.Context, backend.RunRequest) (backend.RunOutcome, error) {
			assert.Empty(t, o.SudoCommand(), "sudo command must be cleared before the request is issued")
			assert.Equal(t, Starting{}, o.State())
			return backend.Started{RunID: "r2"}, nil
		}
		assert.Equal(t, Running{RunID: "r2"}, o.ApplyAndRun(ctx, "x", cfg, true, false))
		assert.Empty(t, o.SudoCommand())
	})

	t.Run("ValidationFailureKeepsSudoCommand", func(t *testing.T) {
		mock := &mockBackend{runFn: runReturns(backend.NeedsPrivilege{SudoCommand: "sudo x"}, nil)}
		o := New(zaptest.NewLogger(t), mock)

		o.ApplyAndRun(ctx, "x", cfg, true, true)
		o.ApplyAndRun(ctx, "x", jail.Config{Path: "/"}, true, true)
		assert.Equal(t, PhaseFailed, o.State().Phase())
		assert.Equal(t, "sudo x", o.SudoCommand())
	})

	t.Run("Rejected", func(t *testing.T) {
		body := `{"status":"busy"}`
		mock := &mockBackend{runFn: runReturns(backend.Rejected{Detail: body}, nil)}
		o := New(zaptest.NewLogger(t), mock)

		state := o.ApplyAndRun(ctx, "x", cfg, true, false)
		failed, ok := state.(Failed)
		require.True(t, ok)
		assert.Equal(t, body, failed.Detail)
		assert.True(t, errors.Is(failed.Err, backend.ErrRejected))
	})

	t.Run("TransportError", func(t *testing.T) {
		err := &backend.TransportError{Op: "run", StatusCode: 400, Detail: "Cannot use root as jail."}
		mock := &mockBackend{runFn: runReturns(nil, err)}
		o := New(zaptest.NewLogger(t), mock)

		state := o.ApplyAndRun(ctx, "x", cfg, true, false)
		assert.Equal(t, Failed{Detail: "Cannot use root as jail.", Err: err}, state)
	})

	t.Run("PlainErrorUsesMessage", func(t *testing.T) {
		mock := &mockBackend{runFn: runReturns(nil, errors.New("network is unreachable"))}
		o := New(zaptest.NewLogger(t), mock)

		state := o.ApplyAndRun(ctx, "x", cfg, false, false)
		assert.Equal(t, "network is unreachable", state.(Failed).Detail)
	})

	t.Run("RunFromEveryState", func(t *testing.T) {
		mock := &mockBackend{}
		o := New(zaptest.NewLogger(t), mock)

		o.PrepareJail(ctx, cfg)
		assert.Equal(t, PhaseRunning, o.ApplyAndRun(ctx, "x", cfg, true, false).Phase())
		assert.Equal(t, PhaseRunning, o.ApplyAndRun(ctx, "x", cfg, true, false).Phase())
		assert.Equal(t, PhaseJailReady, o.PrepareJail(ctx, cfg).Phase())
	})
}

func TestStaleResponsesAreDiscarded(t *testing.T) {
	ctx := context.Background()
	cfg := jail.Config{Path: "sandbox_jail"}

	release := make(chan struct{})
	entered := make(chan struct{})
	mock := &mockBackend{
		runFn: func(_ context.Context, req backend.RunRequest) (backend.RunOutcome, error) {
			if req.Command == "slow" {
				close(entered)
				<-release
				return backend.Started{RunID: "slow-run"}, nil
			}
			return backend.NeedsPrivilege{SudoCommand: "sudo fast"}, nil
		},
	}
	rec := &recorder{}
	o := New(zaptest.NewLogger(t), mock, WithObserver(rec.observe))

	done := make(chan State)
	go func() {
		done <- o.ApplyAndRun(ctx, "slow", cfg, true, false)
	}()
	<-entered

	assert.Equal(t, NeedsPrivilege{SudoCommand: "sudo fast"}, o.ApplyAndRun(ctx, "fast", cfg, true, true))

	close(release)
	slowResult := <-done

	assert.Equal(t, NeedsPrivilege{SudoCommand: "sudo fast"}, slowResult)
	assert.Equal(t, NeedsPrivilege{SudoCommand: "sudo fast"}, o.State())
	assert.Equal(t, "sudo fast", o.SudoCommand())
	assert.NotContains(t, rec.phases(), PhaseRunning)
}

func TestStaleResponseAfterPrepare(t *testing.T) {
	ctx := context.Background()
	cfg := jail.Config{Path: "sandbox_jail"}

	release := make(chan struct{})
	entered := make(chan struct{})
	mock := &mockBackend{
		runFn: func(context.Context, backend.RunRequest) (backend.RunOutcome, error) {
			close(entered)
			<-release
			return nil, &backend.TransportError{Op: "run", Detail: "reset by peer"}
		},
	}
	o := New(zaptest.NewLogger(t), mock)

	done := make(chan State)
	go func() {
		done <- o.ApplyAndRun(ctx, "x", cfg, true, false)
	}()
	<-entered

	assert.Equal(t, JailReady{}, o.PrepareJail(ctx, cfg))
	close(release)
	<-done

	assert.Equal(t, JailReady{}, o.State())
}

func TestCurrentIsConsistent(t *testing.T) {
	ctx := context.Background()
	cfg := jail.Config{Path: "sandbox_jail"}

	mock := &mockBackend{
		runFn: func(_ context.Context, req backend.RunRequest) (backend.RunOutcome, error) {
			if req.Enforce {
				return backend.NeedsPrivilege{SudoCommand: "sudo " + req.Command}, nil
			}
			return backend.Started{RunID: req.Command}, nil
		},
	}
	o := New(zaptest.NewLogger(t), mock)

	const rounds = 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < rounds; i++ {
			o.ApplyAndRun(ctx, fmt.Sprintf("cmd-%d", i), cfg, true, i%2 == 0)
		}
	}()

	check := func() {
		state, sudo := o.Current()
		if np, ok := state.(NeedsPrivilege); ok {
			assert.Equal(t, np.SudoCommand, sudo)
		} else {
			assert.Empty(t, sudo, "state %s", state.Phase())
		}
	}

	for {
		select {
		case <-done:
			check()
			state, sudo := o.Current()
			assert.Equal(t, Running{RunID: fmt.Sprintf("cmd-%d", rounds-1)}, state)
			assert.Empty(t, sudo)
			return
		default:
			check()
		}
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state  State
		phase  Phase
		output string
	}{
		{Idle{}, PhaseIdle, "Idle"},
		{Preparing{}, PhasePreparing, "Preparing..."},
		{JailReady{}, PhaseJailReady, "Jail prepared"},
		{Starting{}, PhaseStarting, "Starting..."},
		{Running{RunID: "abc123"}, PhaseRunning, "Started run: abc123"},
		{NeedsPrivilege{SudoCommand: "sudo ls"}, PhaseNeedsPrivilege, "Requires sudo: sudo ls"},
		{Failed{Detail: "Validation error: Path cannot be empty"}, PhaseFailed, "Validation error: Path cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.phase, tt.state.Phase())
			assert.Equal(t, tt.output, tt.state.String())
		})
	}
}
