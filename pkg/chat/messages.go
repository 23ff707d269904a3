package chat

import (
	"strconv"
	"strings"
	"time"
)

// Sender identifies who produced a turn.
type Sender string

const (
	SenderUser    Sender = "user"
	SenderAI      Sender = "ai"
	SenderInitial Sender = "initial"
)

// Message is one conversation turn. Its position in the transcript is its
// identity; MessageID only exists for external correlation.
type Message struct {
	Sender        Sender       `json:"sender"`
	Text          string       `json:"text"`
	Question      string       `json:"question"`
	SearchQuery   string       `json:"search_query,omitempty"`
	ToolsData     []ClipResult `json:"tools_data"`
	IsStreaming   bool         `json:"is_streaming"`
	TokenSequence int          `json:"token_sequence"`
	MessageID     int64        `json:"message_id,omitempty"`

	// lastToken is the most recently applied token, used to drop
	// back-to-back duplicate deliveries.
	lastToken string
}

// ClipResult is one structured search result returned by the video search tool.
type ClipResult struct {
	Score        float64        `json:"score"`
	Start        float64        `json:"start"`
	End          float64        `json:"end"`
	Metadata     []ClipMetadata `json:"metadata"`
	VideoID      string         `json:"video_id"`
	Confidence   string         `json:"confidence"`
	ThumbnailURL string         `json:"thumbnail_url"`
	VideoURL     string         `json:"video_url"`
	VideoTitle   string         `json:"video_title"`
	ClipURL      string         `json:"clip_url"`
	ClipID       string         `json:"clip_id"`
}

// ClipMetadata is a typed text fragment attached to a clip, e.g. a transcript snippet.
type ClipMetadata struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func NewUserMessage(text string) Message {
	text = strings.TrimSpace(text)
	return Message{
		Sender:    SenderUser,
		Text:      text,
		Question:  text,
		MessageID: time.Now().UnixMilli(),
	}
}

// NewAIMessage creates an empty AI turn bound to the question that triggered it.
func NewAIMessage(question string) Message {
	return Message{
		Sender:    SenderAI,
		Question:  question,
		MessageID: time.Now().UnixMilli(),
	}
}

func NewInitialMessage(text string) Message {
	return Message{
		Sender: SenderInitial,
		Text:   text,
	}
}

func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

func (m Message) IsAI() bool {
	return m.Sender == SenderAI
}

func (m Message) IsInitial() bool {
	return m.Sender == SenderInitial
}

func (m Message) HasToolsData() bool {
	return len(m.ToolsData) > 0
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.ToolsData) == 0
}

// Key returns a stable identifier for the clip, preferring the server clip id.
func (c ClipResult) Key() string {
	if c.ClipID != "" {
		return c.ClipID
	}
	return c.VideoID + ":" + formatSeconds(c.Start) + "-" + formatSeconds(c.End)
}

// Valid reports whether the clip carries enough identity to be shown.
func (c ClipResult) Valid() bool {
	if c.VideoID == "" && c.VideoURL == "" {
		return false
	}
	return c.End >= c.Start
}

// Transcript joins the text fragments of the clip metadata.
func (c ClipResult) Transcript() string {
	parts := make([]string, 0, len(c.Metadata))
	for _, md := range c.Metadata {
		if md.Text != "" {
			parts = append(parts, md.Text)
		}
	}
	return strings.Join(parts, " ")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
