package manifest

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/config"
	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/files"
	"github.com/amireh/karazeh/internal/operation"
)

// Manifest holds the identity lists and releases of one or more loaded
// documents. It is filled by the Load methods and read-only afterwards.
type Manifest struct {
	cfg    *config.Config
	logger *zap.Logger

	identities    map[string]*IdentityList
	identityOrder []string
	releases      []*Release
	byID          map[string]*Release
}

// New creates an empty manifest bound to cfg.
func New(cfg *config.Config) *Manifest {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manifest{
		cfg:        cfg,
		logger:     logger.Named("manifest"),
		identities: make(map[string]*IdentityList),
		byID:       make(map[string]*Release),
	}
}

// LoadFromBytes parses a full version manifest.
func (m *Manifest) LoadFromBytes(data []byte) error {
	doc, err := decode(data, manifestSchemaFn)
	if err != nil {
		return err
	}

	lists := make(map[string]*IdentityList, len(doc.Identities))
	var order []string
	for i, node := range doc.Identities {
		list, err := m.parseIdentity(fmt.Sprintf("/identities/%d", i), node)
		if err != nil {
			return err
		}
		if _, ok := lists[list.Name]; !ok {
			order = append(order, list.Name)
		}
		lists[list.Name] = list
	}

	defined := func(name string) bool {
		if _, ok := lists[name]; ok {
			return true
		}
		_, ok := m.identities[name]
		return ok
	}
	if err := m.addReleases(doc.Releases, defined); err != nil {
		return err
	}

	for _, name := range order {
		if _, ok := m.identities[name]; !ok {
			m.identityOrder = append(m.identityOrder, name)
		}
		m.identities[name] = lists[name]
	}
	return nil
}

// LoadFromFile parses the version manifest at path.
func (m *Manifest) LoadFromFile(path string) error {
	data, err := m.cfg.Files.LoadFile(path)
	if err != nil {
		return files.Wrap("loading manifest", err)
	}
	return m.LoadFromBytes(data)
}

// LoadFromURI downloads and parses a version manifest. Relative URIs are
// resolved against the configured host.
func (m *Manifest) LoadFromURI(ctx context.Context, uri string) error {
	data, err := m.fetch(ctx, uri)
	if err != nil {
		return err
	}
	return m.LoadFromBytes(data)
}

// LoadReleaseFromBytes merges a document holding only releases. Identity
// lists must already be known.
func (m *Manifest) LoadReleaseFromBytes(data []byte) error {
	doc, err := decode(data, releaseSchemaFn)
	if err != nil {
		return err
	}
	return m.addReleases(doc.Releases, func(name string) bool {
		_, ok := m.identities[name]
		return ok
	})
}

// LoadReleaseFromURI downloads and merges a release document.
func (m *Manifest) LoadReleaseFromURI(ctx context.Context, uri string) error {
	data, err := m.fetch(ctx, uri)
	if err != nil {
		return err
	}
	return m.LoadReleaseFromBytes(data)
}

func (m *Manifest) fetch(ctx context.Context, uri string) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.cfg.Downloader.Fetch(ctx, uri, &buf); err != nil {
		if appErrors.CodeOf(err) != appErrors.CodeInternalError {
			return nil, err
		}
		return nil, appErrors.New(appErrors.CodeResourceUnavailable, "fetching manifest "+uri, err)
	}
	m.logger.Debug("fetched manifest", zap.String("uri", uri), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (m *Manifest) parseIdentity(at string, node identityNode) (*IdentityList, error) {
	list := &IdentityList{Name: node.Name}
	for j, rel := range node.Files {
		if err := checkPath(fmt.Sprintf("%s/files/%d", at, j), "files", rel); err != nil {
			return nil, err
		}
		path := m.cfg.RootFile(rel)
		if !m.cfg.Files.IsReadable(path) {
			return nil, appErrors.New(appErrors.CodeFileMissing,
				fmt.Sprintf("identity file %s of list %s is not readable", path, node.Name), nil)
		}
		list.Files = append(list.Files, path)
	}
	return list, nil
}

// addReleases builds every release on a copy and registers the batch only
// when all nodes are valid, so a bad node leaves the manifest as it was.
// defined reports whether an identity list name may be referenced.
func (m *Manifest) addReleases(nodes []releaseNode, defined func(string) bool) error {
	staged := make(map[string]*Release)
	var order []string

	for i, node := range nodes {
		at := fmt.Sprintf("/releases/%d", i)
		if !defined(node.Identity) {
			return &Error{Node: at, Field: "identity",
				Message: fmt.Sprintf("release %s points to undefined identity list %q", node.ID, node.Identity)}
		}

		r, ok := staged[node.ID]
		if !ok {
			r = &Release{ID: node.ID}
			if known, ok := m.byID[node.ID]; ok {
				*r = *known
				r.Operations = append([]operation.Operation(nil), known.Operations...)
			}
			staged[node.ID] = r
			order = append(order, node.ID)
		}

		fillRelease(r, node)
		ops, err := buildOperations(m.cfg, r.ID, len(r.Operations), node.Operations, at+"/operations")
		if err != nil {
			return err
		}
		r.Operations = append(r.Operations, ops...)
	}

	for _, id := range order {
		r := staged[id]
		markReplacements(r.Operations)
		if known, ok := m.byID[id]; ok {
			*known = *r
			m.logger.Debug("merged release", zap.String("id", id), zap.Int("operations", len(r.Operations)))
			continue
		}
		m.releases = append(m.releases, r)
		m.byID[id] = r
		m.logger.Debug("registered release", zap.String("id", id), zap.String("tag", r.Tag))
	}
	return nil
}

// fillRelease copies the scalar fields of node that r does not have yet.
func fillRelease(r *Release, node releaseNode) {
	if r.Identity == "" {
		r.Identity = node.Identity
	}
	if r.Head == "" {
		r.Head = node.Head
	}
	if r.Tag == "" {
		r.Tag = node.Tag
	}
	if r.URI == "" {
		r.URI = node.URI
	}
}

// Fingerprint computes the live fingerprint of an identity list: the digest
// of its files' hex digests concatenated in declared order.
func (m *Manifest) Fingerprint(identity string) (string, error) {
	list, ok := m.identities[identity]
	if !ok {
		return "", fmt.Errorf("unknown identity list %q", identity)
	}

	var concat bytes.Buffer
	for _, path := range list.Files {
		if !m.cfg.Files.IsReadable(path) {
			return "", appErrors.New(appErrors.CodeFileMissing, "identity file "+path+" is not readable", nil)
		}
		digest := m.cfg.Hasher.HexDigestFile(path)
		if !digest.Valid {
			return "", appErrors.New(appErrors.CodeFileMissing, "identity file "+path+" could not be digested", nil)
		}
		concat.WriteString(digest.Hex)
	}
	return m.cfg.Hasher.HexDigest(concat.Bytes()).Hex, nil
}

// CurrentVersion returns the id of the first release whose identity list
// currently fingerprints to that id, or "" when no release matches.
func (m *Manifest) CurrentVersion() (string, error) {
	fingerprints := make(map[string]string, len(m.identities))
	for _, name := range m.identityOrder {
		fp, err := m.Fingerprint(name)
		if err != nil {
			return "", err
		}
		fingerprints[name] = fp
	}

	for _, r := range m.releases {
		if r.ID == fingerprints[r.Identity] {
			return r.ID, nil
		}
	}
	m.logger.Debug("no release matches the installed files")
	return "", nil
}

// AvailableUpdates follows head→id edges from current and returns the ids of
// the releases on the way, oldest first. An empty or unrecognized current
// version yields no updates.
func (m *Manifest) AvailableUpdates(current string) ([]string, error) {
	if current == "" {
		return nil, nil
	}

	var chain []string
	for cursor := current; ; {
		next := m.successor(cursor)
		if next == nil {
			return chain, nil
		}
		if len(chain) == len(m.releases) {
			return nil, &Error{Node: "/releases", Field: "head",
				Message: "release chain from " + current + " contains a cycle"}
		}
		chain = append(chain, next.ID)
		cursor = next.ID
	}
}

func (m *Manifest) successor(head string) *Release {
	for _, r := range m.releases {
		if r.Head == head {
			return r
		}
	}
	return nil
}

// Release returns the release with the given id.
func (m *Manifest) Release(id string) (*Release, bool) {
	r, ok := m.byID[id]
	return r, ok
}

// Releases returns every release in registration order.
func (m *Manifest) Releases() []*Release {
	return append([]*Release(nil), m.releases...)
}

// ReleaseCount returns the number of releases.
func (m *Manifest) ReleaseCount() int {
	return len(m.releases)
}

// ReleaseCountFor returns the number of releases affecting identity.
func (m *Manifest) ReleaseCountFor(identity string) int {
	n := 0
	for _, r := range m.releases {
		if r.Identity == identity {
			n++
		}
	}
	return n
}

// Identities returns the identity list names in declaration order.
func (m *Manifest) Identities() []string {
	return append([]string(nil), m.identityOrder...)
}

// IdentityList returns the named identity list.
func (m *Manifest) IdentityList(name string) (*IdentityList, bool) {
	l, ok := m.identities[name]
	return l, ok
}
