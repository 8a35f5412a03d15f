package search

import (
	"time"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
)

// QueryMonitor provides hooks to observe the query process.
// Implement this interface to track intermediate steps and results.
// AfterEmbedding and AfterTextExtraction may be called concurrently.
type QueryMonitor interface {
	Start(image core.ImageInfo, k int)
	AfterEmbedding(dimension int, elapsed time.Duration)
	AfterTextExtraction(text *ai.ExtractedText, err error)
	AfterNearestNeighbors(matches []*core.Match)
	Finish(result *Result)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.ImageInfo, _ int)                    {}
func (n *noopMonitor) AfterEmbedding(_ int, _ time.Duration)            {}
func (n *noopMonitor) AfterTextExtraction(_ *ai.ExtractedText, _ error) {}
func (n *noopMonitor) AfterNearestNeighbors(_ []*core.Match)            {}
func (n *noopMonitor) Finish(_ *Result)                                 {}
