package buildcoordinator

import (
	"archive/zip"
	"bytes"
	"io"
	"net/mail"
	"strings"

	wheelcore "github.com/distribution/wheelcore"
)

// ParsedMetadata is the decoded form of a wheel's dist-info/METADATA
// file. METADATA is RFC-822-header syntax (a header block, optionally
// followed by a free-text body); net/mail.ReadMessage parses exactly
// that grammar.
type ParsedMetadata struct {
	Name    string
	Version string
	Header  mail.Header
}

// findDistInfoMember locates the "<prefix>.dist-info/METADATA" entry in
// zr. Zero matches is DistInfoMissingError (or MetadataMissingError if
// the directory exists but lacks METADATA); more than one is
// MultipleSpecialDirsError.
func findDistInfoMember(zr *zip.Reader, prefix string) (*zip.File, error) {
	distInfoDir := prefix + ".dist-info/"
	target := distInfoDir + "METADATA"

	var matches []*zip.File
	sawDir := false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, distInfoDir) {
			sawDir = true
		}
		if f.Name == target {
			matches = append(matches, f)
		}
	}

	switch {
	case len(matches) > 1:
		return nil, &wheelcore.MultipleSpecialDirsError{Kind: "dist-info"}
	case len(matches) == 1:
		return matches[0], nil
	case sawDir:
		return nil, &wheelcore.MetadataMissingError{DistInfoDir: distInfoDir}
	default:
		return nil, &wheelcore.DistInfoMissingError{Prefix: prefix}
	}
}

// ExtractMetadata reads and parses the METADATA member of the wheel
// archive in archiveBytes, keyed by the dist-info prefix implied by
// filename. It returns the raw METADATA bytes and the parsed form, and
// verifies that the filename and METADATA agree on distribution name and
// version.
func ExtractMetadata(archiveBytes []byte, filename *WheelFilename) ([]byte, *ParsedMetadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, nil, &wheelcore.ZipError{Detail: err.Error()}
	}

	member, err := findDistInfoMember(zr, filename.DistInfoPrefix())
	if err != nil {
		return nil, nil, err
	}

	rc, err := member.Open()
	if err != nil {
		return nil, nil, &wheelcore.ZipError{Detail: err.Error()}
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, &wheelcore.ZipError{Detail: err.Error()}
	}

	parsed, err := parseMetadata(raw)
	if err != nil {
		return nil, nil, err
	}

	if err := checkConsistency(filename, parsed); err != nil {
		return nil, nil, err
	}

	return raw, parsed, nil
}

func parseMetadata(raw []byte) (*ParsedMetadata, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, &wheelcore.FailedToParseError{Reason: "METADATA is not valid RFC-822 syntax: " + err.Error()}
	}
	return &ParsedMetadata{
		Name:    strings.TrimSpace(msg.Header.Get("Name")),
		Version: strings.TrimSpace(msg.Header.Get("Version")),
		Header:  msg.Header,
	}, nil
}

func checkConsistency(filename *WheelFilename, parsed *ParsedMetadata) error {
	if NormalizeDistName(filename.Distribution) != NormalizeDistName(parsed.Name) {
		return &wheelcore.FailedToParseError{
			Reason: "filename distribution " + filename.Distribution + " disagrees with METADATA Name " + parsed.Name,
		}
	}
	if filename.Version != parsed.Version {
		return &wheelcore.FailedToParseError{
			Reason: "filename version " + filename.Version + " disagrees with METADATA Version " + parsed.Version,
		}
	}
	return nil
}
