package buildcoordinator

import (
	"context"
	"os"

	wheelcore "github.com/distribution/wheelcore"
)

// LocalProvisioner is the default Provisioner: it carves a fresh,
// empty working directory for each source identity out of a base
// directory and leaves populating it (interpreter, venv, extracted
// source tree, build-time dependencies) to the external build backend
// invoked against that directory. It does no isolation of its own
// beyond the working directory boundary.
type LocalProvisioner struct {
	BaseDir string
}

// NewLocalProvisioner returns a LocalProvisioner rooted at baseDir,
// creating it if necessary.
func NewLocalProvisioner(baseDir string) (*LocalProvisioner, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, &wheelcore.IOError{Path: baseDir, Detail: err.Error()}
	}
	return &LocalProvisioner{BaseDir: baseDir}, nil
}

// Provision implements Provisioner.
func (p *LocalProvisioner) Provision(ctx context.Context, source SourceIdentity, interpreterVersion string, envVars map[string]string) (*BuildSandbox, error) {
	dir, err := os.MkdirTemp(p.BaseDir, "sandbox-*")
	if err != nil {
		return nil, &wheelcore.IOError{Path: p.BaseDir, Detail: err.Error()}
	}
	return newBuildSandbox(dir, interpreterVersion, envVars), nil
}
