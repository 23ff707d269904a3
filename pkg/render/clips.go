package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/logger"
)

// FormatTime renders seconds as m:ss, or h:mm:ss from an hour on.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ClipTable lists clips one per entry with their time range and link.
func (r *Renderer) ClipTable(clips []chat.ClipResult) string {
	if len(clips) == 0 {
		return ""
	}

	lines := make([]string, 0, len(clips)*2)
	for i, clip := range clips {
		title := clip.VideoTitle
		if title == "" {
			title = clip.VideoID
		}
		entry := fmt.Sprintf("%s %s  %s",
			r.styles.ClipIndex.Render(fmt.Sprintf("%d.", i+1)),
			r.styles.ClipTitle.Render(title),
			r.styles.ClipRange.Render(FormatTime(clip.Start)+"-"+FormatTime(clip.End)),
		)
		if clip.Score > 0 || clip.Confidence != "" {
			score := fmt.Sprintf("score %.0f", clip.Score)
			if clip.Confidence != "" {
				score += " (" + clip.Confidence + ")"
			}
			entry += "  " + r.styles.ClipScore.Render(score)
		}
		lines = append(lines, entry)

		if url := clipLink(clip); url != "" {
			lines = append(lines, "   "+r.styles.ClipURL.Render(url))
		}
	}
	return r.styles.ClipBox.Render(strings.Join(lines, "\n"))
}

func clipLink(clip chat.ClipResult) string {
	if clip.ClipURL != "" {
		return clip.ClipURL
	}
	return clip.VideoURL
}

// HighlightJSON pretty-prints clips as JSON and colors them for a 256-color
// terminal. It falls back to plain indented JSON when highlighting fails.
func HighlightJSON(clips []chat.ClipResult) string {
	raw, err := json.MarshalIndent(clips, "", "  ")
	if err != nil {
		return ""
	}
	content := string(raw)
	log := logger.WithComponent("render")

	lexer := lexers.Get("json")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		log.Debug("Failed to tokenize clips, using plain text", "error", err)
		return content
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		log.Debug("Failed to format clips, using plain text", "error", err)
		return content
	}
	return buf.String()
}
