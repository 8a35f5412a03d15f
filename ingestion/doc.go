// Package ingestion populates the catalog from an external metadata source.
//
// A Pipeline walks each scope (a style or category key) page by page:
//   - Listing a page of records from the source
//   - Fetching each record's cover image
//   - Computing and normalizing the cover embedding
//   - Upserting the entry into the catalog
//
// Records within a page are processed concurrently on a worker pool; scopes
// run concurrently up to a bound. Every external call passes through one
// rate limiter and is retried with exponential backoff when the failure is
// transient.
//
// Progress is checkpointed per scope after each page, so an interrupted run
// resumes where it stopped. Items already stored with the current model
// version and unchanged metadata are skipped without fetching or embedding,
// which also protects runs that start without a checkpoint.
//
// A failed item is recorded in the Report and never aborts the run. Only an
// unavailable store or a canceled context stops a run early.
package ingestion
