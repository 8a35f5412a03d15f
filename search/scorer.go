package search

import (
	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
)

// Scorer assigns the final score of a match. Scores are clamped to [0, 1]
// and matches are re-ranked by them, ties broken by ascending SourceID.
// text is the OCR result for the query image and may be empty.
type Scorer interface {
	Score(match *core.Match, text *ai.ExtractedText) float32
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(match *core.Match, text *ai.ExtractedText) float32

// Score calls f.
func (f ScorerFunc) Score(match *core.Match, text *ai.ExtractedText) float32 {
	return f(match, text)
}

// VisualScorer ranks purely by visual similarity. It is the default.
type VisualScorer struct{}

var _ Scorer = VisualScorer{}

// Score returns the match's cosine score unchanged.
func (VisualScorer) Score(match *core.Match, _ *ai.ExtractedText) float32 {
	return match.Score
}

// TextBoostScorer adds Boost to the visual score when every significant word
// of the entry title, or of its artist, is found in the cover text.
// It is opt-in; OCR errors make it behave like VisualScorer.
type TextBoostScorer struct {
	Boost float32
}

var _ Scorer = TextBoostScorer{}

// Score returns the visual score plus any text boost.
func (s TextBoostScorer) Score(match *core.Match, text *ai.ExtractedText) float32 {
	if text.Empty() || match.Entry == nil {
		return match.Score
	}
	words := newWordSet(text.String())
	if words.containsAll(match.Entry.Title) || words.containsAll(match.Entry.Artist) {
		return match.Score + s.Boost
	}
	return match.Score
}
