// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// parseAttempts is how many times a malformed model answer is re-requested.
const parseAttempts = 3

// TextExtractor implements ai.TextExtractor using an OpenAI-compatible vision chat model.
type TextExtractor struct {
	client        llms.Model
	minConfidence float64
	logger        *slog.Logger
}

var _ ai.TextExtractor = (*TextExtractor)(nil)

// ocrLine is an internal type used for JSON unmarshaling.
type ocrLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ocrResponse is the wrapper structure for the model's JSON response.
type ocrResponse struct {
	Lines []ocrLine `json:"lines"`
}

// newTextExtractor is an internal constructor that returns the concrete type.
func newTextExtractor(config *ai.Config) (*TextExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.OCREnabled() {
		return nil, errors.New("ai config: OCRHost is not set")
	}

	// Local OpenAI-compatible servers ignore the token but the client requires one
	token := config.OCRToken
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.OCRHost),
		openai.WithToken(token),
		openai.WithModel(config.OCRModel),
		openai.WithHTTPClient(&http.Client{Timeout: config.RequestTimeout}),
	)
	if err != nil {
		return nil, err
	}

	return newTextExtractorWithModel(client, config.MinConfidence), nil
}

func newTextExtractorWithModel(client llms.Model, minConfidence float64) *TextExtractor {
	return &TextExtractor{
		client:        client,
		minConfidence: minConfidence,
		logger:        slog.Default().With("component", "remote-ocr"),
	}
}

// NewTextExtractor creates an OCR extractor using the provided configuration.
//
// Returns ai.TextExtractor interface to enforce abstraction.
func NewTextExtractor(config *ai.Config) (ai.TextExtractor, error) {
	return newTextExtractor(config)
}

// ExtractText asks the vision model to transcribe image and keeps the lines
// whose confidence exceeds the configured minimum.
func (e *TextExtractor) ExtractText(ctx context.Context, image []byte) (*ai.ExtractedText, error) {
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(ocrSystemPrompt)},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.ImageURLPart(dataURL),
				llms.TextPart(ocrUserPrompt),
			},
		},
	}

	var (
		result  ocrResponse
		lastErr error
	)
	for attempt := 0; attempt < parseAttempts; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, classifyLLMError(err)
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return &ai.ExtractedText{}, nil
		}

		responseText := cleanModelJSON(response.Choices[0].Content)
		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing OCR response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse OCR response after retries", "err", lastErr)
		return nil, core.NewPermanentError("ocr", fmt.Errorf("malformed model response: %w", lastErr))
	}

	extracted := &ai.ExtractedText{Lines: make([]ai.TextLine, 0, len(result.Lines))}
	for _, line := range result.Lines {
		extracted.Lines = append(extracted.Lines, ai.TextLine{
			Text:       strings.TrimSpace(line.Text),
			Confidence: line.Confidence,
		})
	}
	filtered := extracted.Above(e.minConfidence)

	e.logger.Debug("extracted text",
		"total", len(extracted.Lines),
		"filtered", len(filtered.Lines))
	return filtered, nil
}

// classifyLLMError wraps a chat completion failure. The client reports HTTP
// failures only as text, so rate limits and server errors are recognized by
// their status codes in the message.
func classifyLLMError(err error) error {
	if errors.Is(err, context.Canceled) {
		return core.NewPermanentError("ocr", err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return core.NewTransientError("ocr", err)
	}
	msg := err.Error()
	for _, marker := range []string{"429", "500", "502", "503", "504", "connection refused", "connection reset"} {
		if strings.Contains(msg, marker) {
			return core.NewTransientError("ocr", err)
		}
	}
	return core.NewPermanentError("ocr", err)
}
