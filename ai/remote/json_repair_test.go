package remote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "valid JSON untouched",
			in:   `{"lines": [{"text": "A", "confidence": 0.9}]}`,
			want: `{"lines": [{"text": "A", "confidence": 0.9}]}`,
		},
		{
			name: "missing opening quote on key",
			in:   `{"lines": [{"text": "A", confidence": 0.9}]}`,
			want: `{"lines": [{"text": "A", "confidence": 0.9}]}`,
		},
		{
			name: "missing quote on first key",
			in:   `{lines": []}`,
			want: `{"lines": []}`,
		},
		{
			name: "bare words in values left alone",
			in:   `{"ok": true, "n": null}`,
			want: `{"ok": true, "n": null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.in))
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	raw := "```json\n{\"lines\": [{\"text\": \"BLUE TRAIN\", confidence\": 0.92}]}\n```"

	var out ocrResponse
	require.NoError(t, json.Unmarshal([]byte(cleanModelJSON(raw)), &out))
	require.Len(t, out.Lines, 1)
	assert.Equal(t, "BLUE TRAIN", out.Lines[0].Text)
	assert.InDelta(t, 0.92, out.Lines[0].Confidence, 1e-9)
}
