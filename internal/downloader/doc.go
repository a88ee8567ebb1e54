// Package downloader fetches remote resources over HTTP. Files are streamed to
// disk and verified against an expected checksum (and optionally a size);
// failed transfers and integrity mismatches are retried a bounded number of
// times before giving up.
package downloader
