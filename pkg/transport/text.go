package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/killallgit/vidchat/pkg/logger"
	"github.com/killallgit/vidchat/pkg/stream"
)

// TextSource reads the proxy's raw chunked text stream. Every decoded chunk
// is delivered as a text event; status lines are left for the aggregator to
// classify.
type TextSource struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewTextSource(baseURL string, client *http.Client) *TextSource {
	if client == nil {
		// Streams are long lived, so no client timeout
		client = &http.Client{}
	}
	return &TextSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     logger.WithComponent("text_source"),
	}
}

func (s *TextSource) Open(ctx context.Context, req Request) (<-chan stream.Fragment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/stream_events", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if err := checkStatus("stream_events", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	out := make(chan stream.Fragment, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		snd := sender{ctx: ctx, out: out}
		for text, err := range stream.NewDecoder(resp.Body).All() {
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.log.Error("Text stream failed", "error", err)
					snd.fail(fmt.Errorf("failed to read stream: %w", err))
				}
				return
			}
			if !snd.send(stream.Fragment{Event: stream.TextEvent(text)}) {
				return
			}
		}
	}()
	return out, nil
}
