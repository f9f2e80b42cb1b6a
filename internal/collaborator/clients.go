package collaborator

import (
	"context"
	"fmt"
	"time"
)

const defaultTimeout = 30 * time.Second

// TranscriberClient drives the speech-to-text engine.
type TranscriberClient struct {
	httpClient
}

func NewTranscriberClient(baseURL string) *TranscriberClient {
	return &TranscriberClient{newHTTPClient(baseURL, defaultTimeout)}
}

func (c *TranscriberClient) StartCapture(ctx context.Context, channelId string) error {
	body := map[string]string{"channel_id": channelId}
	if err := c.postJSON(ctx, "/capture/start", body, nil); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	return nil
}

func (c *TranscriberClient) StopCapture(ctx context.Context, channelId string) ([]TranscriptChunk, error) {
	body := map[string]string{"channel_id": channelId}
	var result struct {
		Chunks []TranscriptChunk `json:"chunks"`
	}
	if err := c.postJSON(ctx, "/capture/stop", body, &result); err != nil {
		return nil, fmt.Errorf("failed to stop capture: %w", err)
	}

	return result.Chunks, nil
}

// SummarizerClient turns a raw transcript into meeting minutes prose.
type SummarizerClient struct {
	httpClient
}

func NewSummarizerClient(baseURL string) *SummarizerClient {
	// Summarization of a long meeting can take a while.
	return &SummarizerClient{newHTTPClient(baseURL, 5*time.Minute)}
}

func (c *SummarizerClient) Summarize(ctx context.Context, text string) (string, error) {
	body := map[string]string{"text": text}
	var result struct {
		Summary string `json:"summary"`
	}
	if err := c.postJSON(ctx, "/summarize", body, &result); err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}

	return result.Summary, nil
}

// RendererClient renders a structured minutes document to a binary format.
type RendererClient struct {
	httpClient
}

func NewRendererClient(baseURL string) *RendererClient {
	return &RendererClient{newHTTPClient(baseURL, defaultTimeout)}
}

func (c *RendererClient) RenderMinutes(ctx context.Context, doc *MinutesDocument) ([]byte, error) {
	document, err := c.postJSONRaw(ctx, "/render/minutes", doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render minutes: %w", err)
	}

	return document, nil
}

// BotManagerClient controls the browser-automation containers that sit in a
// room to capture its audio.
type BotManagerClient struct {
	httpClient
}

func NewBotManagerClient(baseURL string) *BotManagerClient {
	return &BotManagerClient{newHTTPClient(baseURL, defaultTimeout)}
}

func (c *BotManagerClient) Launch(ctx context.Context, channelId string) error {
	body := map[string]string{"channel_id": channelId}
	if err := c.postJSON(ctx, "/bots/launch", body, nil); err != nil {
		return fmt.Errorf("failed to launch bot: %w", err)
	}

	return nil
}

func (c *BotManagerClient) Close(ctx context.Context, channelId string) error {
	body := map[string]string{"channel_id": channelId}
	if err := c.postJSON(ctx, "/bots/close", body, nil); err != nil {
		return fmt.Errorf("failed to close bot: %w", err)
	}

	return nil
}
