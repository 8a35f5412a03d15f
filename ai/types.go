package ai

import "strings"

// TextLine is one line of text recognized in an image.
type TextLine struct {
	Text string

	// Confidence is the recognizer's certainty in [0, 1].
	Confidence float64
}

// ExtractedText is the result of OCR over one image.
type ExtractedText struct {
	Lines []TextLine
}

// Empty reports whether no text was found.
func (t *ExtractedText) Empty() bool {
	return t == nil || len(t.Lines) == 0
}

// Above returns the lines whose confidence is strictly greater than min.
func (t *ExtractedText) Above(min float64) *ExtractedText {
	if t == nil {
		return &ExtractedText{}
	}
	kept := make([]TextLine, 0, len(t.Lines))
	for _, line := range t.Lines {
		if line.Confidence > min {
			kept = append(kept, line)
		}
	}
	return &ExtractedText{Lines: kept}
}

// String joins the non-blank lines with ", ".
func (t *ExtractedText) String() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Lines))
	for _, line := range t.Lines {
		if s := strings.TrimSpace(line.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
