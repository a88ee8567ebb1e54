package manifest

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/operation"
)

// IdentityList names the files whose combined digest fingerprints an
// installed version.
type IdentityList struct {
	Name string
	// Files are absolute paths under the install root, in declared order.
	Files []string
}

// Release is a transition from fingerprint Head to fingerprint ID.
type Release struct {
	ID         string
	Head       string
	Identity   string
	Tag        string
	URI        string
	Operations []operation.Operation
}

// Version parses Tag as a semantic version. A leading "v" is accepted.
func (r *Release) Version() (*semver.Version, error) {
	if r.Tag == "" {
		return nil, fmt.Errorf("release %s has no tag", r.ID)
	}
	v, err := semver.NewVersion(r.Tag)
	if err != nil {
		return nil, fmt.Errorf("release %s tag %q: %w", r.ID, r.Tag, err)
	}
	return v, nil
}

func (r *Release) String() string {
	if r.Tag != "" {
		return r.Tag + " (" + r.ID + ")"
	}
	return r.ID
}

// Error reports a malformed manifest document.
type Error struct {
	// Node is the JSON pointer of the offending node, empty for the document.
	Node    string
	Field   string
	Message string
	Issues  []Issue
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("invalid manifest")
	if e.Node != "" {
		b.WriteString(" at " + e.Node)
	}
	if e.Field != "" {
		b.WriteString(" (" + e.Field + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	for _, issue := range e.Issues {
		b.WriteString("\n  " + issue.String())
	}
	return b.String()
}

// ErrorCode implements errors.Coder.
func (e *Error) ErrorCode() appErrors.Code {
	return appErrors.CodeInvalidManifest
}

func schemaError(issues []Issue) *Error {
	e := &Error{Message: "schema violation", Issues: issues}
	if len(issues) > 0 {
		e.Node = issues[0].Path
		e.Field = issues[0].Field
	}
	return e
}

// Raw document shapes. yaml.v3 decodes JSON too.

type document struct {
	Identities []identityNode `yaml:"identities"`
	Releases   []releaseNode  `yaml:"releases"`
}

type identityNode struct {
	Name  string   `yaml:"name"`
	Files []string `yaml:"files"`
}

type releaseNode struct {
	ID         string          `yaml:"id"`
	Head       string          `yaml:"head"`
	Identity   string          `yaml:"identity"`
	Tag        string          `yaml:"tag"`
	URI        string          `yaml:"uri"`
	Operations []operationNode `yaml:"operations"`
}

type resourceNode struct {
	URL      string `yaml:"url"`
	Checksum string `yaml:"checksum"`
	Size     int64  `yaml:"size"`
}

type basisNode struct {
	Filepath     string `yaml:"filepath"`
	PreChecksum  string `yaml:"pre_checksum"`
	PostChecksum string `yaml:"post_checksum"`
}

type flagsNode struct {
	Executable bool `yaml:"executable"`
}

type operationNode struct {
	Type        string        `yaml:"type"`
	Source      *resourceNode `yaml:"source"`
	Destination string        `yaml:"destination"`
	Flags       *flagsNode    `yaml:"flags"`
	Basis       *basisNode    `yaml:"basis"`
	Delta       *resourceNode `yaml:"delta"`
	Target      string        `yaml:"target"`
}
