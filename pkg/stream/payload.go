package stream

import (
	"encoding/json"
	"strings"

	"github.com/killallgit/vidchat/pkg/chat"
)

// ExtractPayload separates a trailing JSON array of clips from the prose
// around it. The candidate spans from the first '[' to the last ']' of text.
// When the candidate is not yet a complete, non-empty array of valid clips,
// ok is false and prose is text unchanged; callers retry on the next
// fragment.
func ExtractPayload(text string) (prose string, clips []chat.ClipResult, ok bool) {
	first := strings.IndexByte(text, '[')
	last := strings.LastIndexByte(text, ']')
	if first < 0 || last < 0 || first >= last {
		return text, nil, false
	}

	candidate := text[first : last+1]
	var parsed []chat.ClipResult
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return text, nil, false
	}
	if len(parsed) == 0 {
		return text, nil, false
	}
	for _, clip := range parsed {
		if !clip.Valid() {
			return text, nil, false
		}
	}

	return text[:first] + text[last+1:], parsed, true
}

// ParseClips decodes a tool output holding a JSON array of clips. The output
// may itself be a JSON-encoded string wrapping the array.
func ParseClips(output string) ([]chat.ClipResult, bool) {
	output = strings.TrimSpace(output)
	if strings.HasPrefix(output, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(output), &inner); err != nil {
			return nil, false
		}
		output = inner
	}
	_, clips, ok := ExtractPayload(output)
	return clips, ok
}
