// Package recording defines the per-run Context threaded through every
// component: the recording identity, the base URL artifacts are fetched
// from, and the working directory they land in.
package recording

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/cespare/xxhash/v2"
)

// urlPattern matches BigBlueButton-style playback URLs:
//
//	<scheme>://<host>/playback/presentation/<version>/[playback.html?...meetingId=]<id>
//
// where <id> is a hyphenated hexadecimal run.
var urlPattern = regexp.MustCompile(
	`^(https?)://([^/]+)/playback/presentation/([^/]+)/(?:playback\.html\?[^#]*meetingId=)?([0-9a-fA-F-]+)`,
)

// ID is a parsed recording URL: scheme, host, playback version and the
// recording's hyphenated-hex id.
type ID struct {
	Scheme  string
	Host    string
	Version string
	Hex     string
}

// ParseURL extracts an ID from a raw recording URL. It returns an error if
// the URL does not match the expected BigBlueButton playback shape.
func ParseURL(raw string) (ID, error) {
	m := urlPattern.FindStringSubmatch(raw)
	if m == nil {
		return ID{}, fmt.Errorf("recording: %q does not look like a BigBlueButton playback URL", raw)
	}
	return ID{Scheme: m[1], Host: m[2], Version: m[3], Hex: m[4]}, nil
}

// BaseURL is the artifact root: <scheme>://<host>/presentation/<id>/
func (id ID) BaseURL() string {
	return fmt.Sprintf("%s://%s/presentation/%s/", id.Scheme, id.Host, id.Hex)
}

// WorkDirName is a stable hash of the recording id, used to name its
// working directory so repeated runs against the same recording resume
// into the same place.
func (id ID) WorkDirName() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(id.Hex))
}

// Context carries the identity and filesystem location of one run through
// every component, so nothing relies on process-global state.
type Context struct {
	ID      ID
	WorkDir string // <working>/<hash>; relative if the working root is
}

func New(id ID, workingRoot string) Context {
	return Context{ID: id, WorkDir: filepath.Join(workingRoot, id.WorkDirName())}
}
