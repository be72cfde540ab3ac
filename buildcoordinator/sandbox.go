package buildcoordinator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync/atomic"

	wheelcore "github.com/distribution/wheelcore"
	"github.com/distribution/wheelcore/wcontext"
)

// OnFailure selects what happens to a sandbox's working directory after
// a failed build.
type OnFailure int

const (
	// Discard deletes the sandbox's working directory on failure. The
	// default.
	Discard OnFailure = iota
	// Preserve detaches the working directory from automatic cleanup and
	// records its path for post-mortem inspection.
	Preserve
)

// Phase identifies which sandbox operation to run.
type Phase string

const (
	PhaseWheelMetadata Phase = "WheelMetadata"
	PhaseWheel         Phase = "Wheel"
)

// metadataFallbackExitCode is the sentinel exit code a build backend uses
// on WheelMetadata to signal "I can't extract metadata without a full
// build".
const metadataFallbackExitCode = 50

// BuildSandbox is an owned, disposable working directory containing an
// isolated interpreter environment, the extracted source tree, and
// installed build-time dependencies. Its lifetime is scoped to the build
// attempt unless explicitly preserved on failure.
type BuildSandbox struct {
	Dir                string
	InterpreterVersion string
	EnvVars            map[string]string

	refCount   int32
	persistent int32 // atomic bool
}

// newBuildSandbox wraps dir as a fresh sandbox with a single reference
// held by its provisioner.
func newBuildSandbox(dir, interpreterVersion string, env map[string]string) *BuildSandbox {
	return &BuildSandbox{Dir: dir, InterpreterVersion: interpreterVersion, EnvVars: env, refCount: 1}
}

// Acquire adds a reference, used when a waiter is handed the shared
// sandbox a provisioner constructed: the sandbox is released only once
// the last user drops it.
func (s *BuildSandbox) Acquire() {
	atomic.AddInt32(&s.refCount, 1)
}

// Release drops a reference. When the last reference is released and the
// sandbox was not marked Preserve, its working directory is removed.
func (s *BuildSandbox) Release(ctx context.Context) {
	if atomic.AddInt32(&s.refCount, -1) > 0 {
		return
	}
	if atomic.LoadInt32(&s.persistent) != 0 {
		return
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		wcontext.GetLogger(ctx).Warnf("buildcoordinator: failed to clean up sandbox %s: %v", s.Dir, err)
	}
}

// markPersistent detaches the sandbox from automatic cleanup, for the
// Preserve failure policy.
func (s *BuildSandbox) markPersistent() {
	atomic.StoreInt32(&s.persistent, 1)
}

// RunCommand invokes the configured build backend for phase, writing its
// output into outputDir. The backend runs as an external subprocess,
// invoked with the phase and output directory as its two arguments.
func RunCommand(ctx context.Context, backendCommand []string, sandbox *BuildSandbox, phase Phase, outputDir string) error {
	if len(backendCommand) == 0 {
		return &wheelcore.BuildError{Phase: string(phase), Stderr: "no build backend command configured"}
	}

	args := append(append([]string{}, backendCommand[1:]...), string(phase), outputDir)
	cmd := exec.CommandContext(ctx, backendCommand[0], args...)
	cmd.Dir = sandbox.Dir
	cmd.Env = os.Environ()
	for k, v := range sandbox.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if phase == PhaseWheelMetadata && exitErr.ExitCode() == metadataFallbackExitCode {
			return errMetadataFallback
		}
		return &wheelcore.BuildError{Phase: string(phase), Stderr: stderr.String()}
	}
	return &wheelcore.IOError{Path: sandbox.Dir, Detail: err.Error()}
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// metadataFallbackSignal is a sentinel error type: RunCommand returns one
// instance of it to tell its caller to fall back to a full build rather
// than treating exit code 50 as an ordinary failure.
type metadataFallbackSignal struct{}

func (*metadataFallbackSignal) Error() string { return "buildcoordinator: metadata fallback requested" }

var errMetadataFallback = &metadataFallbackSignal{}
