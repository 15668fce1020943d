package types

import (
	"encoding/json"
)

// =============================================================================
// LEGACY SHAPE RECONSTRUCTION
// =============================================================================
// Older persisted records carry only a flattened content string, not a
// structured part sequence. All shape-compatibility logic lives here so the
// rest of the engine only ever sees the tagged-union model.

// PartsFromContent reconstructs a best-effort part sequence from flattened
// plain content. An empty content string yields no parts.
func PartsFromContent(content string) []Part {
	if content == "" {
		return nil
	}
	return []Part{TextPart(content)}
}

// DecodeParts decodes a persisted parts payload, falling back to the
// flattened content column when the payload is absent or malformed. Malformed
// structured data is not an error: the record degrades to raw text rather
// than failing the history load.
func DecodeParts(raw []byte, content string) []Part {
	if len(raw) == 0 {
		return PartsFromContent(content)
	}
	var parts []Part
	if err := json.Unmarshal(raw, &parts); err != nil {
		return PartsFromContent(content)
	}
	// Drop entries with no recognizable kind; a fully unrecognizable payload
	// degrades to the flattened content.
	kept := parts[:0]
	for _, p := range parts {
		switch p.Kind {
		case PartText, PartReasoning, PartTool, PartSuggestionBatch:
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return PartsFromContent(content)
	}
	return kept
}

// EncodeParts serializes a part sequence for persistence. Returns nil for an
// empty sequence so legacy-shaped rows stay legacy-shaped.
func EncodeParts(parts []Part) []byte {
	if len(parts) == 0 {
		return nil
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return nil
	}
	return data
}
