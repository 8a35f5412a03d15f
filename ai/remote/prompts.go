package remote

const ocrResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "lines": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["text", "confidence"],
        "additionalProperties": false
      }
    }
  },
  "required": ["lines"],
  "additionalProperties": false
}`

const ocrSystemPrompt = `You read printed text on photographs of album covers.

Transcribe every distinct line of legible text on the cover exactly as printed:
artist names, album titles, record labels, catalog numbers, track listings.
Do not translate, correct spelling, or guess at text you cannot read.
For each line give a confidence between 0 and 1 that your transcription is exact.
If the image contains no legible text, return an empty list.

Respond with JSON only, matching this schema:
` + ocrResponseSchema

const ocrUserPrompt = "Transcribe the text on this cover."
