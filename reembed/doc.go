// Package reembed re-embeds catalog entries after an embedding model upgrade.
//
// Vectors from different models are never compared, so entries embedded by
// an older model drop out of query results once the query embedder changes.
// A Reembedder walks the catalog in batches, re-fetches the cover of every
// stale entry, embeds it with the current model and upserts the result.
// Metadata is left untouched. Progress is reported to a writer, and failed
// entries are counted without stopping the run.
package reembed
