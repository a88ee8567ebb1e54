package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.yaml.in/yaml/v3"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/operation"
)

// decode validates data against schema and unmarshals it.
func decode(data []byte, schema func() *jsonschema.Schema) (*document, error) {
	issues, err := validate(data, schema)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	if len(issues) > 0 {
		return nil, schemaError(issues)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Message: fmt.Sprintf("decoding document: %v", err)}
	}
	return &doc, nil
}

// checkPath rejects paths that would escape the install root.
func checkPath(node, field, p string) error {
	clean := filepath.ToSlash(p)
	if path.IsAbs(clean) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return &Error{Node: node, Field: field, Message: fmt.Sprintf("path %q must be relative to the install root", p)}
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return &Error{Node: node, Field: field, Message: fmt.Sprintf("path %q leaves the install root", p)}
		}
	}
	return nil
}

// buildOperations turns operation nodes into operations numbered from first.
func buildOperations(cfg *config.Config, releaseID string, first int, nodes []operationNode, nodePath string) ([]operation.Operation, error) {
	ops := make([]operation.Operation, 0, len(nodes))
	for i, n := range nodes {
		at := fmt.Sprintf("%s/%d", nodePath, i)
		index := first + i

		switch n.Type {
		case operation.TypeCreate:
			if err := checkPath(at, "destination", n.Destination); err != nil {
				return nil, err
			}
			spec := operation.CreateSpec{
				URL:         n.Source.URL,
				Checksum:    n.Source.Checksum,
				Size:        n.Source.Size,
				Destination: n.Destination,
			}
			if n.Flags != nil {
				spec.Executable = n.Flags.Executable
			}
			ops = append(ops, operation.NewCreate(cfg, releaseID, index, spec))

		case operation.TypeUpdate:
			if err := checkPath(at+"/basis", "filepath", n.Basis.Filepath); err != nil {
				return nil, err
			}
			ops = append(ops, operation.NewUpdate(cfg, releaseID, index, operation.UpdateSpec{
				Basis:         n.Basis.Filepath,
				PreChecksum:   n.Basis.PreChecksum,
				PostChecksum:  n.Basis.PostChecksum,
				DeltaURL:      n.Delta.URL,
				DeltaChecksum: n.Delta.Checksum,
				DeltaSize:     n.Delta.Size,
			}))

		case operation.TypeDelete:
			if err := checkPath(at, "target", n.Target); err != nil {
				return nil, err
			}
			ops = append(ops, operation.NewDelete(cfg, releaseID, index, n.Target))

		default:
			return nil, &Error{Node: at, Field: "type", Message: fmt.Sprintf("unknown operation type %q", n.Type)}
		}
	}
	return ops, nil
}

// markReplacements flags every create whose destination is removed by an
// earlier delete of the same release.
func markReplacements(ops []operation.Operation) {
	deleted := make(map[string]bool)
	for _, op := range ops {
		switch o := op.(type) {
		case *operation.Delete:
			deleted[o.Target()] = true
		case *operation.Create:
			if deleted[o.Destination()] {
				o.MarkForDeletion()
			}
		}
	}
}
