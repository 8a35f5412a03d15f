package ingestion

import "errors"

var (
	// ErrCatalogRequired is returned when a catalog repository is not provided.
	ErrCatalogRequired = errors.New("catalog repository required")

	// ErrCheckpointRepositoryRequired is returned when a checkpoint repository is not provided.
	ErrCheckpointRepositoryRequired = errors.New("checkpoint repository required")

	// ErrSourceRequired is returned when a metadata source is not provided.
	ErrSourceRequired = errors.New("metadata source required")

	// ErrFetcherRequired is returned when an image fetcher is not provided.
	ErrFetcherRequired = errors.New("image fetcher required")

	// ErrEmbedderRequired is returned when an image embedder is not provided.
	ErrEmbedderRequired = errors.New("image embedder required")

	// ErrNoScopes is returned when Run is called without any scope.
	ErrNoScopes = errors.New("at least one scope required")
)
