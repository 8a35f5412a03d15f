// Package source defines the external catalog capabilities that feed
// ingestion: a paged metadata listing and a cover image fetcher.
//
// Implementations live in subpackages:
//
//   - discogs: the Discogs database search API, paged by style
//   - manifest: a local JSON manifest with images on disk, for offline
//     seeding and tests
//
// HTTPFetcher is the default ImageFetcher. It reports failures as
// *core.ProviderError with Transient set, so the ingestion retry policy can
// tell a flaky CDN from a dead link.
package source
