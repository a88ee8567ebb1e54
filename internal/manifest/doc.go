// Package manifest parses version manifests and resolves which releases an
// installation is missing. Documents (JSON, or YAML) are checked against the
// embedded JSON Schema before any operation is built; violations surface as
// *Error with the offending node path.
//
// An installed version is identified by the fingerprint of an identity list,
// the digest of its files' digests in declared order. Releases link a head
// fingerprint to the id fingerprint they produce.
package manifest
