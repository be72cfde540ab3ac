package buildcoordinator

import (
	"regexp"
	"strings"

	wheelcore "github.com/distribution/wheelcore"
)

// wheelFilenamePattern implements the binary archive filename grammar:
// <distribution>-<version>[-<build>]-<interpreter>-<abi>-<platform>.whl.
// The grammar is small and fixed, so stdlib regexp is the idiomatic
// choice here.
var wheelFilenamePattern = regexp.MustCompile(
	`^(?P<distribution>[^-]+)-(?P<version>[^-]+)(-(?P<build>\d[^-]*))?-(?P<interpreter>[^-]+)-(?P<abi>[^-]+)-(?P<platform>[^-]+)\.whl$`,
)

// WheelFilename is the parsed form of a binary archive filename.
type WheelFilename struct {
	Distribution string
	Version      string
	Build        string // empty if absent
	Interpreter  string
	ABI          string
	Platform     string
}

// ParseWheelFilename parses name against the wheel filename grammar.
func ParseWheelFilename(name string) (*WheelFilename, error) {
	m := wheelFilenamePattern.FindStringSubmatch(name)
	if m == nil {
		return nil, &wheelcore.FailedToParseError{Reason: "filename does not match wheel grammar: " + name}
	}
	groups := make(map[string]string, len(m))
	for i, g := range wheelFilenamePattern.SubexpNames() {
		if i != 0 && g != "" {
			groups[g] = m[i]
		}
	}
	return &WheelFilename{
		Distribution: groups["distribution"],
		Version:      groups["version"],
		Build:        groups["build"],
		Interpreter:  groups["interpreter"],
		ABI:          groups["abi"],
		Platform:     groups["platform"],
	}, nil
}

// NormalizeDistName applies the PEP 503 normalization the dist-info
// prefix match relies on: runs of -, _, . collapse to a single
// underscore, case-folded.
func NormalizeDistName(name string) string {
	var b strings.Builder
	lastWasSep := false
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == '.' {
			if !lastWasSep {
				b.WriteByte('_')
				lastWasSep = true
			}
			continue
		}
		b.WriteRune(r)
		lastWasSep = false
	}
	return b.String()
}

// DistInfoPrefix is the "<normalized_name>-<version>" prefix used to
// locate the dist-info directory.
func (f *WheelFilename) DistInfoPrefix() string {
	return NormalizeDistName(f.Distribution) + "-" + f.Version
}
