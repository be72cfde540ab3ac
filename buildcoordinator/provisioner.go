package buildcoordinator

import (
	"context"
	"fmt"
	"sync"

	wheelcore "github.com/distribution/wheelcore"
	"github.com/distribution/wheelcore/wcontext"
)

// Provisioner constructs a fresh BuildSandbox: a working directory, an
// isolated interpreter environment, the extracted source tree, and
// installed build-time dependencies. The interpreter/venv machinery
// behind it is an external collaborator; the coordinator owns only the
// single-flight protocol around this call.
type Provisioner interface {
	Provision(ctx context.Context, source SourceIdentity, interpreterVersion string, envVars map[string]string) (*BuildSandbox, error)
}

// broadcaster delivers a single provisioning outcome to any number of
// waiters: one provisioner sends exactly once, every subscriber receives
// the same outcome. A close-once channel rather than sync.Cond, so a
// waiter can select on it alongside ctx.Done.
type broadcaster struct {
	done   chan struct{}
	result *BuildSandbox
	err    error
}

func newBroadcaster() *broadcaster {
	return &broadcaster{done: make(chan struct{})}
}

func (b *broadcaster) finish(result *BuildSandbox, err error) {
	b.result, b.err = result, err
	close(b.done)
}

// sandboxRegistry holds the ready/in-flight sandbox maps. Both mutexes
// guard only map membership; neither is ever held across a channel
// receive, subprocess call, or other suspension point.
type sandboxRegistry struct {
	readyMu sync.Mutex
	ready   map[string]*BuildSandbox

	inFlightMu sync.Mutex
	inFlight   map[string]*broadcaster

	provisionCount int64 // test probe: number of successful provisioner runs
}

func newSandboxRegistry() *sandboxRegistry {
	return &sandboxRegistry{
		ready:    make(map[string]*BuildSandbox),
		inFlight: make(map[string]*broadcaster),
	}
}

// setupSandbox implements the provisioning algorithm: a ready sandbox
// satisfies the request immediately; an in-flight provisioning attempt
// is joined rather than duplicated; otherwise this call becomes the
// provisioner.
func (r *sandboxRegistry) setupSandbox(
	ctx context.Context,
	source SourceIdentity,
	interpreterVersion string,
	envVars map[string]string,
	provisioner Provisioner,
) (*BuildSandbox, error) {
	key := source.String()

	// Step 1: ready fast path.
	r.readyMu.Lock()
	if sandbox, ok := r.ready[key]; ok {
		sandbox.Acquire()
		r.readyMu.Unlock()
		return sandbox, nil
	}
	r.readyMu.Unlock()

	// Step 2: join an in-flight provisioning attempt, or become the
	// provisioner.
	r.inFlightMu.Lock()
	if b, ok := r.inFlight[key]; ok {
		r.inFlightMu.Unlock()
		return r.await(ctx, b)
	}
	// Re-check ready under the in-flight lock: a provisioner that finished
	// after Step 1 published its sandbox there before retiring its
	// in-flight entry.
	r.readyMu.Lock()
	if sandbox, ok := r.ready[key]; ok {
		sandbox.Acquire()
		r.readyMu.Unlock()
		r.inFlightMu.Unlock()
		return sandbox, nil
	}
	r.readyMu.Unlock()
	b := newBroadcaster()
	r.inFlight[key] = b
	r.inFlightMu.Unlock()

	// Step 3: provision.
	sandbox, err := r.provision(wcontext.DetachedContext(ctx), source, interpreterVersion, envVars, provisioner)

	// The ready entry is published before the in-flight entry is
	// retired, so a concurrent caller never observes this key absent
	// from both maps: it either joins the in-flight broadcaster or takes
	// the ready fast path, but it can't fall through Step 2 and start a
	// second provisioner.
	if err == nil {
		// The ready map holds its own strong reference, distinct from the
		// one handed back to this call's caller: each is released
		// independently, so the sandbox's directory survives until both
		// the last borrower and the ready map itself have dropped it.
		sandbox.Acquire()
		r.readyMu.Lock()
		r.ready[key] = sandbox
		r.readyMu.Unlock()
	}

	r.inFlightMu.Lock()
	// Identity-guarded delete: only remove the entry if it is still the
	// one this goroutine registered, so a concurrent fresh attempt
	// (started after this one's weak reference "expired") is never
	// clobbered.
	if r.inFlight[key] == b {
		delete(r.inFlight, key)
	}
	r.inFlightMu.Unlock()

	b.finish(sandbox, err)
	return sandbox, err
}

// await subscribes to an in-flight provisioner's broadcast. A waiter's
// own context cancellation never affects the provisioner; it only stops
// this call from waiting any longer.
func (r *sandboxRegistry) await(ctx context.Context, b *broadcaster) (*BuildSandbox, error) {
	select {
	case <-b.done:
		if b.result != nil {
			b.result.Acquire()
			return b.result, nil
		}
		return nil, b.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// provision runs the Provisioner, recovering a panic into a
// BuildSetupError with Panicked=true instead of letting it propagate and
// take down the caller's goroutine. A recovered panic here does not
// poison future attempts: the in-flight entry for this key is removed by
// setupSandbox immediately after provision returns, regardless of
// outcome, so the very next call starts clean.
func (r *sandboxRegistry) provision(
	ctx context.Context,
	source SourceIdentity,
	interpreterVersion string,
	envVars map[string]string,
	provisioner Provisioner,
) (sandbox *BuildSandbox, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			wcontext.GetLogger(ctx).Errorf("buildcoordinator: provisioning %s panicked: %v", source, rec)
			err = &wheelcore.BuildSetupError{
				Reason:    fmt.Sprint(rec),
				Panicked:  true,
				SourceRef: source.String(),
			}
			sandbox = nil
		}
	}()

	sandbox, provErr := provisioner.Provision(ctx, source, interpreterVersion, envVars)
	if provErr != nil {
		return nil, &wheelcore.BuildSetupError{Reason: provErr.Error(), SourceRef: source.String()}
	}

	r.inFlightMu.Lock()
	r.provisionCount++
	r.inFlightMu.Unlock()

	return sandbox, nil
}
