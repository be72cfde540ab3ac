package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"unsafe"

	wheelcore "github.com/distribution/wheelcore"
)

// This codec is a hand-rolled, fixed-layout binary format: Validate
// performs one pass over the buffer and returns an OwnedManifest; Deref
// constructs an O(1) view over that same buffer (offsets and lengths
// only, using unsafe.String to avoid a copy per field) with no further
// allocation; DeserializeToOwned deep-copies into a mutable Manifest for
// callers that need to mutate the result.

const (
	magic        = "WCM1"
	headerLen    = 4 + 4 + 4 + 4 // magic + numDirectories + numFiles + numLinks
	dirRecordLen = 4 + 4         // offset, length
	fileRecordLen = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 // path(off,len) content(off,len) sha256(off,len) mode hasMode
	linkRecordLen = 4 + 4 + 4 + 4                 // key(off,len) value(off,len)
)

// Serialize produces the canonical byte encoding of m. Identical Manifest
// contents always produce identical bytes: files and links are written
// sorted by key regardless of Go map iteration order; directories are
// written in the order already recorded on m (archive order, itself
// deterministic).
func Serialize(m *Manifest) []byte {
	filePaths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		filePaths = append(filePaths, p)
	}
	sort.Strings(filePaths)

	linkPaths := make([]string, 0, len(m.Links))
	for p := range m.Links {
		linkPaths = append(linkPaths, p)
	}
	sort.Strings(linkPaths)

	var strings_ bytes.Buffer
	intern := func(s string) (uint32, uint32) {
		off := uint32(strings_.Len())
		strings_.WriteString(s)
		return off, uint32(len(s))
	}

	dirRecords := make([]byte, 0, len(m.Directories)*dirRecordLen)
	for _, d := range m.Directories {
		off, ln := intern(d)
		dirRecords = appendU32(dirRecords, off)
		dirRecords = appendU32(dirRecords, ln)
	}

	fileRecords := make([]byte, 0, len(filePaths)*fileRecordLen)
	for _, p := range filePaths {
		e := m.Files[p]
		pOff, pLen := intern(p)
		cOff, cLen := intern(e.Content)
		sOff, sLen := intern(e.SHA256)
		fileRecords = appendU32(fileRecords, pOff)
		fileRecords = appendU32(fileRecords, pLen)
		fileRecords = appendU32(fileRecords, cOff)
		fileRecords = appendU32(fileRecords, cLen)
		fileRecords = appendU32(fileRecords, sOff)
		fileRecords = appendU32(fileRecords, sLen)
		var mode uint32
		var hasMode uint32
		if e.Mode != nil {
			mode = *e.Mode
			hasMode = 1
		}
		fileRecords = appendU32(fileRecords, mode)
		fileRecords = appendU32(fileRecords, hasMode)
	}

	linkRecords := make([]byte, 0, len(linkPaths)*linkRecordLen)
	for _, p := range linkPaths {
		target := m.Links[p]
		kOff, kLen := intern(p)
		vOff, vLen := intern(target)
		linkRecords = appendU32(linkRecords, kOff)
		linkRecords = appendU32(linkRecords, kLen)
		linkRecords = appendU32(linkRecords, vOff)
		linkRecords = appendU32(linkRecords, vLen)
	}

	out := make([]byte, 0, headerLen+len(dirRecords)+len(fileRecords)+len(linkRecords)+strings_.Len())
	out = append(out, magic...)
	out = appendU32(out, uint32(len(m.Directories)))
	out = appendU32(out, uint32(len(filePaths)))
	out = appendU32(out, uint32(len(linkPaths)))
	out = append(out, dirRecords...)
	out = append(out, fileRecords...)
	out = append(out, linkRecords...)
	out = append(out, strings_.Bytes()...)
	return out
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func readU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// OwnedManifest owns the validated backing buffer. Its zero value is not
// usable; obtain one from Validate or FromReader.
type OwnedManifest struct {
	buf                               []byte
	numDirectories, numFiles, numLinks uint32
	dirTableOff, fileTableOff, linkTableOff, stringsOff int
}

// Validate performs one structural pass over buf — checking the magic,
// table bounds, and that every offset/length pair stays within the
// buffer — and returns an OwnedManifest wrapping buf directly (no copy).
// A buffer that fails any check is reported as a CorruptedArchiveError.
func Validate(buf []byte) (*OwnedManifest, error) {
	if len(buf) < headerLen {
		return nil, &wheelcore.CorruptedArchiveError{Reason: "buffer shorter than header"}
	}
	if string(buf[:4]) != magic {
		return nil, &wheelcore.CorruptedArchiveError{Reason: "bad magic"}
	}
	numDirectories := readU32(buf, 4)
	numFiles := readU32(buf, 8)
	numLinks := readU32(buf, 12)

	dirTableOff := headerLen
	dirTableLen := int(numDirectories) * dirRecordLen
	fileTableOff := dirTableOff + dirTableLen
	fileTableLen := int(numFiles) * fileRecordLen
	linkTableOff := fileTableOff + fileTableLen
	linkTableLen := int(numLinks) * linkRecordLen
	stringsOff := linkTableOff + linkTableLen

	if stringsOff > len(buf) {
		return nil, &wheelcore.CorruptedArchiveError{Reason: "table sizes exceed buffer length"}
	}

	om := &OwnedManifest{
		buf:            buf,
		numDirectories: numDirectories,
		numFiles:       numFiles,
		numLinks:       numLinks,
		dirTableOff:    dirTableOff,
		fileTableOff:   fileTableOff,
		linkTableOff:   linkTableOff,
		stringsOff:     stringsOff,
	}
	if err := om.validateStringRefs(); err != nil {
		return nil, err
	}
	return om, nil
}

func (om *OwnedManifest) validateStringRefs() error {
	check := func(off, ln uint32) error {
		start := om.stringsOff + int(off)
		end := start + int(ln)
		if off > uint32(len(om.buf)) || end > len(om.buf) || end < start {
			return &wheelcore.CorruptedArchiveError{Reason: fmt.Sprintf("string reference out of bounds (off=%d len=%d)", off, ln)}
		}
		return nil
	}
	for i := uint32(0); i < om.numDirectories; i++ {
		rec := om.dirTableOff + int(i)*dirRecordLen
		if err := check(readU32(om.buf, rec), readU32(om.buf, rec+4)); err != nil {
			return err
		}
	}
	for i := uint32(0); i < om.numFiles; i++ {
		rec := om.fileTableOff + int(i)*fileRecordLen
		if err := check(readU32(om.buf, rec), readU32(om.buf, rec+4)); err != nil {
			return err
		}
		if err := check(readU32(om.buf, rec+8), readU32(om.buf, rec+12)); err != nil {
			return err
		}
		if err := check(readU32(om.buf, rec+16), readU32(om.buf, rec+20)); err != nil {
			return err
		}
	}
	for i := uint32(0); i < om.numLinks; i++ {
		rec := om.linkTableOff + int(i)*linkRecordLen
		if err := check(readU32(om.buf, rec), readU32(om.buf, rec+4)); err != nil {
			return err
		}
		if err := check(readU32(om.buf, rec+8), readU32(om.buf, rec+12)); err != nil {
			return err
		}
	}
	return nil
}

// FromReader reads all of r and validates it.
func FromReader(r io.Reader) (*OwnedManifest, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Validate(buf)
}

func (om *OwnedManifest) str(off, ln uint32) string {
	start := om.stringsOff + int(off)
	b := om.buf[start : start+int(ln)]
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// View is a zero-copy read-only view over an OwnedManifest's buffer,
// valid only as long as the OwnedManifest it was derived from is
// reachable.
type View struct {
	om *OwnedManifest
}

// Deref constructs a View over om. Constant-time: it touches no bytes
// beyond the struct fields already computed by Validate.
func Deref(om *OwnedManifest) *View {
	return &View{om: om}
}

// Directories returns the directory paths in archive order, each a
// zero-copy string backed by the OwnedManifest's buffer.
func (v *View) Directories() []string {
	out := make([]string, v.om.numDirectories)
	for i := range out {
		rec := v.om.dirTableOff + i*dirRecordLen
		out[i] = v.om.str(readU32(v.om.buf, rec), readU32(v.om.buf, rec+4))
	}
	return out
}

// FileCount returns the number of file entries.
func (v *View) FileCount() int { return int(v.om.numFiles) }

// FileAt returns the i'th file entry in sorted-by-path order.
func (v *View) FileAt(i int) (path string, content string, sha256 string, mode *uint32) {
	rec := v.om.fileTableOff + i*fileRecordLen
	path = v.om.str(readU32(v.om.buf, rec), readU32(v.om.buf, rec+4))
	content = v.om.str(readU32(v.om.buf, rec+8), readU32(v.om.buf, rec+12))
	sha256 = v.om.str(readU32(v.om.buf, rec+16), readU32(v.om.buf, rec+20))
	if readU32(v.om.buf, rec+28) != 0 {
		m := readU32(v.om.buf, rec+24)
		mode = &m
	}
	return
}

// Lookup finds the file entry at path via binary search over the
// sorted-by-path file table.
func (v *View) Lookup(path string) (content string, sha256 string, mode *uint32, ok bool) {
	lo, hi := 0, int(v.om.numFiles)
	for lo < hi {
		mid := (lo + hi) / 2
		p, c, s, m := v.FileAt(mid)
		switch {
		case p == path:
			return c, s, m, true
		case p < path:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return "", "", nil, false
}

// LinkCount returns the number of symlink entries.
func (v *View) LinkCount() int { return int(v.om.numLinks) }

// LinkAt returns the i'th link entry in sorted-by-path order.
func (v *View) LinkAt(i int) (path, target string) {
	rec := v.om.linkTableOff + i*linkRecordLen
	path = v.om.str(readU32(v.om.buf, rec), readU32(v.om.buf, rec+4))
	target = v.om.str(readU32(v.om.buf, rec+8), readU32(v.om.buf, rec+12))
	return
}

// DeserializeToOwned deep-decodes an OwnedManifest into a fully-owned,
// mutable Manifest, for callers that need to mutate the result. Every
// string is copied off the OwnedManifest's buffer.
func DeserializeToOwned(om *OwnedManifest) *Manifest {
	v := Deref(om)
	m := New()
	m.Directories = append([]string{}, v.Directories()...)
	for i := 0; i < v.FileCount(); i++ {
		path, content, sha256, mode := v.FileAt(i)
		entry := FileEntry{Content: string([]byte(content)), SHA256: string([]byte(sha256))}
		if mode != nil {
			mv := *mode
			entry.Mode = &mv
		}
		m.Files[string([]byte(path))] = entry
	}
	for i := 0; i < v.LinkCount(); i++ {
		path, target := v.LinkAt(i)
		m.Links[string([]byte(path))] = string([]byte(target))
	}
	return m
}
