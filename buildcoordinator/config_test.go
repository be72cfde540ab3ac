package buildcoordinator

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner
func Test(t *testing.T) { TestingT(t) }

type ConfigSuite struct{}

var _ = Suite(&ConfigSuite{})

var configYamlV0_1 = `
version: 0.1
log:
  level: debug
  fields:
    environment: test
storage:
  filesystem:
    rootdirectory: /tmp/wheelcore
cache:
  type: memory
  capacity: 512
backend:
  - /usr/bin/wheelcore-backend
onfailure: preserve
`

func (s *ConfigSuite) TestParseConfig(c *C) {
	cfg, err := ParseConfig([]byte(configYamlV0_1))
	c.Assert(err, IsNil)
	c.Assert(cfg.Version, Equals, CurrentVersion)
	c.Assert(cfg.Log.Level, Equals, Loglevel("debug"))
	c.Assert(cfg.Log.Fields["environment"], Equals, "test")
	c.Assert(cfg.Storage.Type(), Equals, "filesystem")
	c.Assert(cfg.Storage.Parameters()["rootdirectory"], Equals, "/tmp/wheelcore")
	c.Assert(cfg.Cache.Type, Equals, "memory")
	c.Assert(cfg.ResolveOnFailure(), Equals, Preserve)
}

func (s *ConfigSuite) TestParseConfigFile(c *C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "wheelcore.yaml")
	c.Assert(os.WriteFile(path, []byte(configYamlV0_1), 0o644), IsNil)

	cfg, err := ParseConfigFile(path)
	c.Assert(err, IsNil)
	c.Assert(cfg.Backend, DeepEquals, []string{"/usr/bin/wheelcore-backend"})
}

func (s *ConfigSuite) TestParseConfigRejectsUnsupportedVersion(c *C) {
	_, err := ParseConfig([]byte("version: 9.9\nbackend: [x]\n"))
	c.Assert(err, ErrorMatches, ".*unsupported configuration version.*")
}

func (s *ConfigSuite) TestParseConfigRequiresBackend(c *C) {
	_, err := ParseConfig([]byte("version: 0.1\n"))
	c.Assert(err, ErrorMatches, ".*must set backend.*")
}

func (s *ConfigSuite) TestLoglevelRejectsUnknownValue(c *C) {
	_, err := ParseConfig([]byte("version: 0.1\nlog:\n  level: verbose\nbackend: [x]\n"))
	c.Assert(err, ErrorMatches, ".*invalid loglevel.*")
}

func (s *ConfigSuite) TestStorageParametersTypePanicsOnMultipleDrivers(c *C) {
	sp := StorageParameters{
		"filesystem": map[string]interface{}{"rootdirectory": "/a"},
		"s3":         map[string]interface{}{"bucket": "b"},
	}
	c.Assert(sp.Type, PanicMatches, ".*multiple storage drivers.*")
}
