package buildcoordinator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-events"

	wheelcore "github.com/distribution/wheelcore"
	"github.com/distribution/wheelcore/wcontext"
)

// Coordinator ties the binary-archive cache, single-flight sandbox
// provisioning, sandbox execution, and event/metric reporting together
// into its two public operations: MetadataOf and Build.
type Coordinator struct {
	registry *sandboxRegistry
	cache    BinaryArchiveCache
	events   *EventBroadcaster

	Provisioner    Provisioner
	BackendCommand []string
	OnFailure      OnFailure
	Offloader      *Offloader

	preservedMu sync.Mutex
	preserved   map[string]string // source key -> sandbox dir, populated by the Preserve policy
}

// NewCoordinator constructs a Coordinator. cache may be nil, in which
// case every call is a cache miss (no binary-archive cache configured).
// sinks may be empty, in which case lifecycle events are dropped.
func NewCoordinator(provisioner Provisioner, backendCommand []string, cache BinaryArchiveCache, sinks ...events.Sink) *Coordinator {
	return &Coordinator{
		registry:       newSandboxRegistry(),
		cache:          cache,
		events:         NewEventBroadcaster(sinks...),
		Provisioner:    provisioner,
		BackendCommand: backendCommand,
		OnFailure:      Discard,
		Offloader:      NewOffloader(4),
		preserved:      make(map[string]string),
	}
}

// PreservedSandboxes returns a snapshot of the preserved-sandboxes set:
// the working directory path of every sandbox the Preserve policy has
// detached from automatic cleanup, keyed by the SourceIdentity string
// that failed to build.
func (c *Coordinator) PreservedSandboxes() map[string]string {
	c.preservedMu.Lock()
	defer c.preservedMu.Unlock()
	out := make(map[string]string, len(c.preserved))
	for k, v := range c.preserved {
		out[k] = v
	}
	return out
}

// MetadataOf returns the raw metadata bytes and parsed metadata for a
// source distribution, built fresh if no prior build already produced
// it. It first attempts the cheap WheelMetadata phase, and transparently
// falls back to a full Wheel build if the configured backend signals it
// cannot produce metadata without one (exit code 50).
func (c *Coordinator) MetadataOf(ctx context.Context, source SourceIdentity, interpreterVersion string, envVars map[string]string) ([]byte, *ParsedMetadata, error) {
	key := BuildCacheKey{Source: source, InterpreterVersion: interpreterVersion}

	if c.cache != nil {
		if archive, ok, err := c.cache.Get(ctx, key); err != nil {
			return nil, nil, err
		} else if ok {
			recordCacheHit()
			return c.extractFromArchive(archive)
		}
	}
	recordCacheMiss()

	c.publish(&BuildStartedEvent{Source: source, Phase: PhaseWheelMetadata})
	recordProvisioningStart()
	sandbox, err := c.registry.setupSandbox(ctx, source, interpreterVersion, envVars, c.Provisioner)
	recordProvisioningEnd()
	if err != nil {
		c.publish(&BuildFailedEvent{Source: source, Phase: PhaseWheelMetadata, Err: err})
		return nil, nil, err
	}
	defer sandbox.Release(ctx)

	start := time.Now()
	outputDir, err := os.MkdirTemp("", "wheelcore-metadata-*")
	if err != nil {
		return nil, nil, &wheelcore.IOError{Path: outputDir, Detail: err.Error()}
	}
	defer os.RemoveAll(outputDir)

	var runErr error
	err = c.Offloader.Run(ctx, func() error {
		runErr = RunCommand(ctx, c.BackendCommand, sandbox, PhaseWheelMetadata, outputDir)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if runErr == errMetadataFallback {
		wcontext.GetLogger(ctx).Infof("buildcoordinator: backend requested full build to extract metadata for %s", source)
		// Falls through to the public Build operation rather than the
		// bare buildLocked helper so this fallback inherits Build's
		// cache.Put step: without it, a metadata-only caller that forces
		// a full build would never populate the binary-archive cache,
		// and every later Build/MetadataOf for the same source would
		// redo the full sandbox build instead of taking the cache fast
		// path.
		archive, err := c.Build(ctx, source, interpreterVersion, envVars)
		if err != nil {
			return nil, nil, err
		}
		return c.extractFromArchive(archive)
	}
	if runErr != nil {
		c.onBuildFailure(ctx, source, sandbox, runErr)
		c.publish(&BuildFailedEvent{Source: source, Phase: PhaseWheelMetadata, Err: runErr})
		return nil, nil, runErr
	}

	raw, parsed, err := readMetadataResult(outputDir)
	if err != nil {
		return nil, nil, err
	}
	c.publish(&BuildSucceededEvent{Source: source, Phase: PhaseWheelMetadata, Duration: time.Since(start)})
	recordBuildDuration(time.Since(start))
	recordPhaseDuration("metadata", time.Since(start))
	return raw, parsed, nil
}

// Build runs the cache fast path, single-flight sandbox provisioning,
// the Wheel sandbox command, filename/metadata consistency checking,
// cache association on success, and the configured OnFailure policy.
func (c *Coordinator) Build(ctx context.Context, source SourceIdentity, interpreterVersion string, envVars map[string]string) (*BinaryArchive, error) {
	key := BuildCacheKey{Source: source, InterpreterVersion: interpreterVersion}

	if c.cache != nil {
		if archive, ok, err := c.cache.Get(ctx, key); err != nil {
			return nil, err
		} else if ok {
			recordCacheHit()
			return archive, nil
		}
	}
	recordCacheMiss()

	c.publish(&BuildStartedEvent{Source: source, Phase: PhaseWheel})
	start := time.Now()

	recordProvisioningStart()
	sandbox, err := c.registry.setupSandbox(ctx, source, interpreterVersion, envVars, c.Provisioner)
	recordProvisioningEnd()
	if err != nil {
		c.publish(&BuildFailedEvent{Source: source, Phase: PhaseWheel, Err: err})
		return nil, err
	}
	defer sandbox.Release(ctx)

	outputDir, err := os.MkdirTemp("", "wheelcore-build-*")
	if err != nil {
		return nil, &wheelcore.IOError{Path: outputDir, Detail: err.Error()}
	}
	defer os.RemoveAll(outputDir)

	archive, err := c.buildLocked(ctx, source, interpreterVersion, envVars, sandbox, outputDir)
	if err != nil {
		c.publish(&BuildFailedEvent{Source: source, Phase: PhaseWheel, Err: err})
		return nil, err
	}

	c.publish(&BuildSucceededEvent{Source: source, Phase: PhaseWheel, Duration: time.Since(start)})
	recordBuildDuration(time.Since(start))
	recordPhaseDuration("wheel", time.Since(start))

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, archive); err != nil {
			wcontext.GetLogger(ctx).Warnf("buildcoordinator: failed to populate binary-archive cache for %s: %v", key, err)
		}
	}
	return archive, nil
}

// buildLocked runs the Wheel sandbox command against an already-held
// sandbox and validates the produced archive's filename against source.
// On failure it applies the OnFailure policy before returning.
func (c *Coordinator) buildLocked(ctx context.Context, source SourceIdentity, interpreterVersion string, envVars map[string]string, sandbox *BuildSandbox, outputDir string) (*BinaryArchive, error) {
	var runErr error
	err := c.Offloader.Run(ctx, func() error {
		runErr = RunCommand(ctx, c.BackendCommand, sandbox, PhaseWheel, outputDir)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if runErr != nil {
		c.onBuildFailure(ctx, source, sandbox, runErr)
		return nil, runErr
	}

	archive, err := readWheelResult(outputDir)
	if err != nil {
		c.onBuildFailure(ctx, source, sandbox, err)
		return nil, err
	}

	filename, err := ParseWheelFilename(archive.Filename)
	if err != nil {
		c.onBuildFailure(ctx, source, sandbox, err)
		return nil, err
	}
	if _, _, err := ExtractMetadata(archive.Bytes, filename); err != nil {
		c.onBuildFailure(ctx, source, sandbox, err)
		return nil, err
	}
	if NormalizeDistName(filename.Distribution) != NormalizeDistName(source.Name) || filename.Version != source.Version {
		err := &wheelcore.FailedToParseError{
			Reason: "built archive " + archive.Filename + " does not match requested source " + source.String(),
		}
		c.onBuildFailure(ctx, source, sandbox, err)
		return nil, err
	}
	return archive, nil
}

// onBuildFailure applies the configured OnFailure policy: Discard
// removes the sandbox from the ready registry and drops the registry's
// reference, so the last Release removes the working directory;
// Preserve detaches it from automatic cleanup so its working directory
// survives for post-mortem inspection.
func (c *Coordinator) onBuildFailure(ctx context.Context, source SourceIdentity, sandbox *BuildSandbox, buildErr error) {
	if c.OnFailure != Preserve {
		key := source.String()
		c.registry.readyMu.Lock()
		held := c.registry.ready[key] == sandbox
		if held {
			delete(c.registry.ready, key)
		}
		c.registry.readyMu.Unlock()
		if held {
			sandbox.Release(ctx)
		}
		return
	}
	sandbox.markPersistent()
	recordSandboxPreserved()

	c.preservedMu.Lock()
	c.preserved[source.String()] = sandbox.Dir
	c.preservedMu.Unlock()

	wcontext.GetLogger(ctx).Warnf("buildcoordinator: preserving failed sandbox %s after error: %v", sandbox.Dir, buildErr)
}

// extractFromArchive parses METADATA out of an already-produced or
// cache-hit archive.
func (c *Coordinator) extractFromArchive(archive *BinaryArchive) ([]byte, *ParsedMetadata, error) {
	filename, err := ParseWheelFilename(archive.Filename)
	if err != nil {
		return nil, nil, err
	}
	return ExtractMetadata(archive.Bytes, filename)
}

// publish sends evt to every configured sink. Sink failures never
// affect the build outcome.
func (c *Coordinator) publish(evt events.Event) {
	if c.events == nil {
		return
	}
	_ = c.events.Publish(evt)
}

// readResultFile reads a sentinel result file (metadata_result or
// wheel_result) written by the sandbox command, which contains a single
// path.
func readResultFile(outputDir, name string) (string, error) {
	path := filepath.Join(outputDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &wheelcore.IOError{Path: path, Detail: err.Error()}
	}
	return strings.TrimSpace(string(data)), nil
}

// readWheelResult reads outputDir/wheel_result and loads the binary
// archive it points to.
func readWheelResult(outputDir string) (*BinaryArchive, error) {
	archivePath, err := readResultFile(outputDir, "wheel_result")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, &wheelcore.WheelMissingError{Path: archivePath}
	}
	return &BinaryArchive{Filename: filepath.Base(archivePath), Bytes: data}, nil
}

// readMetadataResult reads outputDir/metadata_result and loads the
// generated dist-info METADATA file it points to, returning both the
// raw bytes and the parsed form.
func readMetadataResult(outputDir string) ([]byte, *ParsedMetadata, error) {
	metadataDir, err := readResultFile(outputDir, "metadata_result")
	if err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(filepath.Join(metadataDir, "METADATA"))
	if err != nil {
		return nil, nil, &wheelcore.MetadataMissingError{DistInfoDir: metadataDir}
	}
	parsed, err := parseMetadata(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, parsed, nil
}
