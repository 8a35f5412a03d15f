package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/coverdex/ai"
)

// MockTextExtractor is a test double for ai.TextExtractor.
type MockTextExtractor struct {
	// ExtractTextFunc is called by ExtractText if set.
	// If nil, returns Text (empty by default).
	ExtractTextFunc func(ctx context.Context, image []byte) (*ai.ExtractedText, error)

	// Text is returned when ExtractTextFunc is nil.
	Text *ai.ExtractedText

	callCount atomic.Int64
}

var _ ai.TextExtractor = (*MockTextExtractor)(nil)

// NewMockTextExtractor creates a mock extractor that finds no text.
func NewMockTextExtractor() *MockTextExtractor {
	return &MockTextExtractor{Text: &ai.ExtractedText{}}
}

// NewMockTextExtractorWithLines creates a mock extractor returning lines,
// each with full confidence.
func NewMockTextExtractorWithLines(lines ...string) *MockTextExtractor {
	text := &ai.ExtractedText{}
	for _, l := range lines {
		text.Lines = append(text.Lines, ai.TextLine{Text: l, Confidence: 1})
	}
	return &MockTextExtractor{Text: text}
}

// ExtractText returns the injected or canned result.
func (m *MockTextExtractor) ExtractText(ctx context.Context, image []byte) (*ai.ExtractedText, error) {
	m.callCount.Add(1)

	if m.ExtractTextFunc != nil {
		return m.ExtractTextFunc(ctx, image)
	}
	if m.Text == nil {
		return &ai.ExtractedText{}, nil
	}
	return m.Text, nil
}

// CallCount returns the number of times ExtractText was called.
func (m *MockTextExtractor) CallCount() int {
	return int(m.callCount.Load())
}
