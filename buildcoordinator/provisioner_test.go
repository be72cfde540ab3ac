package buildcoordinator

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeProvisioner struct {
	baseDir string
	calls   int32
	delay   chan struct{}
	panics  bool
	failErr error
}

func (p *fakeProvisioner) Provision(ctx context.Context, source SourceIdentity, interpreterVersion string, envVars map[string]string) (*BuildSandbox, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.delay != nil {
		<-p.delay
	}
	if p.panics {
		panic("provisioning blew up")
	}
	if p.failErr != nil {
		return nil, p.failErr
	}
	dir, err := os.MkdirTemp(p.baseDir, "sandbox-*")
	if err != nil {
		return nil, err
	}
	return newBuildSandbox(dir, interpreterVersion, envVars), nil
}

func TestSetupSandboxSharesASingleProvisioningAttempt(t *testing.T) {
	registry := newSandboxRegistry()
	source := SourceIdentity{Name: "rich", Version: "13.6.0", ContentHash: "abc"}
	provisioner := &fakeProvisioner{baseDir: t.TempDir(), delay: make(chan struct{})}

	const waiters = 10
	results := make(chan *BuildSandbox, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sandbox, err := registry.setupSandbox(context.Background(), source, "3.11", nil, provisioner)
			if err != nil {
				t.Errorf("setupSandbox: %v", err)
				return
			}
			results <- sandbox
		}()
	}

	close(provisioner.delay)
	wg.Wait()
	close(results)

	var first *BuildSandbox
	count := 0
	for sandbox := range results {
		count++
		if first == nil {
			first = sandbox
		} else if sandbox != first {
			t.Fatal("concurrent setupSandbox calls returned different sandbox instances")
		}
	}
	if count != waiters {
		t.Fatalf("got %d successful results, want %d", count, waiters)
	}
	if got := atomic.LoadInt32(&provisioner.calls); got != 1 {
		t.Fatalf("provisioner.Provision was called %d times, want 1", got)
	}

	registry.readyMu.Lock()
	readyCount := len(registry.ready)
	registry.readyMu.Unlock()
	if readyCount != 1 {
		t.Fatalf("ready registry has %d entries for one source, want 1", readyCount)
	}
}

func TestProvisionRecoversPanicWithoutPoisoningFutureAttempts(t *testing.T) {
	registry := newSandboxRegistry()
	source := SourceIdentity{Name: "evil", Version: "1.0", ContentHash: "xyz"}

	panicking := &fakeProvisioner{baseDir: t.TempDir(), panics: true}
	if _, err := registry.setupSandbox(context.Background(), source, "3.11", nil, panicking); err == nil {
		t.Fatal("expected an error from a panicking provisioner")
	}

	registry.inFlightMu.Lock()
	_, stillInFlight := registry.inFlight[source.String()]
	registry.inFlightMu.Unlock()
	if stillInFlight {
		t.Fatal("in-flight entry was not cleaned up after a panic")
	}

	working := &fakeProvisioner{baseDir: t.TempDir()}
	sandbox, err := registry.setupSandbox(context.Background(), source, "3.11", nil, working)
	if err != nil {
		t.Fatalf("setupSandbox after recovered panic: %v", err)
	}
	if sandbox == nil {
		t.Fatal("expected a sandbox from the follow-up attempt")
	}
	if got := atomic.LoadInt32(&working.calls); got != 1 {
		t.Fatalf("follow-up provisioner called %d times, want 1", got)
	}
}
