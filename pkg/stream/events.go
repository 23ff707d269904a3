package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the events a transport can deliver.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindToolStart
	KindToolEnd
	KindChatModelStart
	KindChatModelStream
	KindChatModelEnd
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolStart:
		return "on_tool_start"
	case KindToolEnd:
		return "on_tool_end"
	case KindChatModelStart:
		return "on_chat_model_start"
	case KindChatModelStream:
		return "on_chat_model_stream"
	case KindChatModelEnd:
		return "on_chat_model_end"
	default:
		return "unknown"
	}
}

// ParseKind maps an agent-runtime event name to a Kind. Unrecognized names
// map to KindUnknown.
func ParseKind(name string) Kind {
	switch name {
	case "on_tool_start":
		return KindToolStart
	case "on_tool_end":
		return KindToolEnd
	case "on_chat_model_start":
		return KindChatModelStart
	case "on_chat_model_stream":
		return KindChatModelStream
	case "on_chat_model_end":
		return KindChatModelEnd
	default:
		return KindUnknown
	}
}

// Channels of the agent-runtime multiplexed stream.
const (
	ChannelEvents  = "events"
	ChannelUpdates = "updates"
)

// Event is one increment delivered by a transport.
type Event struct {
	Kind    Kind
	Channel string
	// Name is the tool or model name the event belongs to.
	Name string
	// Node is the graph node that produced the event, used to tell the
	// user-visible reply apart from internal planning steps.
	Node string
	// Text is the prose or token delta.
	Text string
	// Input is the raw tool input of an on_tool_start event.
	Input json.RawMessage
	// Output is the tool output of an on_tool_end event.
	Output string
}

func TextEvent(text string) Event {
	return Event{Kind: KindText, Text: text}
}

// CloseReason tells why a stream ended.
type CloseReason int

const (
	CloseComplete CloseReason = iota
	CloseError
	CloseCancelled
)

func (r CloseReason) String() string {
	switch r {
	case CloseComplete:
		return "complete"
	case CloseError:
		return "error"
	case CloseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Fragment is one item of a transport channel: an event, or a terminal
// error. A closed channel with no error fragment means the stream completed.
type Fragment struct {
	Event Event
	Err   error
}

type agentEnvelope struct {
	Event    string `json:"event"`
	Name     string `json:"name"`
	Metadata struct {
		Node string `json:"langgraph_node"`
	} `json:"metadata"`
	Data struct {
		Chunk  json.RawMessage `json:"chunk"`
		Input  json.RawMessage `json:"input"`
		Output json.RawMessage `json:"output"`
	} `json:"data"`
}

// DecodeAgentEvent decodes one agent-runtime event. Channels other than
// "events" and unrecognized event names decode to KindUnknown without error;
// only malformed JSON is an error.
func DecodeAgentEvent(channel string, data []byte) (Event, error) {
	ev := Event{Channel: channel}
	if channel != ChannelEvents {
		return ev, nil
	}

	var env agentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ev, fmt.Errorf("failed to decode agent event: %w", err)
	}

	ev.Kind = ParseKind(env.Event)
	ev.Name = env.Name
	ev.Node = env.Metadata.Node
	switch ev.Kind {
	case KindChatModelStream:
		ev.Text = chunkContent(env.Data.Chunk)
	case KindToolStart:
		ev.Input = env.Data.Input
	case KindToolEnd:
		ev.Output = toolOutput(env.Data.Output)
	}
	return ev, nil
}

// chunkContent reads a message chunk whose content is either a string or a
// list of typed parts.
func chunkContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var chunk struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &chunk); err != nil || len(chunk.Content) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(chunk.Content, &text); err == nil {
		return text
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(chunk.Content, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// toolOutput unwraps a tool output that may be a JSON string, a tool message
// object with a content field, or any other JSON value.
func toolOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var msg struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(raw, &msg); err == nil && msg.Content != nil {
		return *msg.Content
	}
	return string(raw)
}

// ToolQuery returns the "query" field of a tool input, if present.
func ToolQuery(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return ""
	}
	return in.Query
}
