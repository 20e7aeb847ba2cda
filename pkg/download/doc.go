// Package download drives the chunked feature download with resume.
//
// A potentially very large identifier list is split into fixed-size chunks
// ("iterations"); each chunk is fetched in one call and persisted as its
// own output segment. Completed segments are never rewritten: on resume the
// identifier columns of existing segments are read back, already-seen
// identifiers are removed from the input, and only the exact remaining list
// is chunked and fetched. New segments continue numbering after the highest
// existing iteration index.
//
// Resume treats identifier lists as sets. If the identifier file changed
// order or content between runs, existing segments are still counted as
// done; that is an operational assumption, not a strong guarantee.
package download
