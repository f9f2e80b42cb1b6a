package minutes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meetsync/sfu-server/internal/collaborator"
)

type iArtifactRepo interface {
	SetMinutes(ctx context.Context, channelId string, document []byte) error
	PopMinutes(ctx context.Context, channelId string) ([]byte, error)
	SetTranscript(ctx context.Context, channelId string, transcript string) error
	PopTranscript(ctx context.Context, channelId string) (string, error)
}

type iTranscriber interface {
	StartCapture(ctx context.Context, channelId string) error
	StopCapture(ctx context.Context, channelId string) ([]collaborator.TranscriptChunk, error)
}

type iSummarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type iRenderer interface {
	RenderMinutes(ctx context.Context, doc *collaborator.MinutesDocument) ([]byte, error)
}

type iBotManager interface {
	Launch(ctx context.Context, channelId string) error
	Close(ctx context.Context, channelId string) error
}

type service struct {
	artifactRepo iArtifactRepo
	transcriber  iTranscriber
	summarizer   iSummarizer
	renderer     iRenderer
	bots         iBotManager
	logger       *slog.Logger
}

func NewService(artifactRepo iArtifactRepo, transcriber iTranscriber, summarizer iSummarizer, renderer iRenderer, bots iBotManager, logger *slog.Logger) *service {
	return &service{
		artifactRepo: artifactRepo,
		transcriber:  transcriber,
		summarizer:   summarizer,
		renderer:     renderer,
		bots:         bots,
		logger:       logger,
	}
}

// StartCapture places a capture bot in the room and starts transcription.
func (s *service) StartCapture(ctx context.Context, channelId string) error {
	if err := s.bots.Launch(ctx, channelId); err != nil {
		return fmt.Errorf("failed to launch capture bot: %w", err)
	}

	if err := s.transcriber.StartCapture(ctx, channelId); err != nil {
		return fmt.Errorf("failed to start transcription: %w", err)
	}

	return nil
}

// Finalize runs the post-meeting pipeline for a destroyed room: stop capture,
// cache the transcript, then summarize and render the minutes document in the
// background. Pipeline failures are logged and swallowed; they must never
// block room destruction, and the cache TTL bounds whatever was stored.
func (s *service) Finalize(ctx context.Context, channelId string) {
	if err := s.bots.Close(ctx, channelId); err != nil {
		s.logger.WarnContext(ctx, "failed to close capture bot", "channelId", channelId, "error", err)
	}

	chunks, err := s.transcriber.StopCapture(ctx, channelId)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to stop transcription", "channelId", channelId, "error", err)
		return
	}
	if len(chunks) == 0 {
		return
	}

	transcript := formatTranscript(chunks)
	if err := s.artifactRepo.SetTranscript(ctx, channelId, transcript); err != nil {
		s.logger.WarnContext(ctx, "failed to cache transcript", "channelId", channelId, "error", err)
	}

	// The pipeline outlives the connection that triggered cleanup.
	go s.produceMinutes(context.WithoutCancel(ctx), channelId, transcript)
}

func (s *service) produceMinutes(ctx context.Context, channelId string, transcript string) {
	summary, err := s.summarizer.Summarize(ctx, transcript)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to summarize transcript", "channelId", channelId, "error", err)
		return
	}

	document, err := s.renderer.RenderMinutes(ctx, &collaborator.MinutesDocument{
		ChannelId:   channelId,
		GeneratedAt: time.Now(),
		Summary:     summary,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to render minutes", "channelId", channelId, "error", err)
		return
	}

	if err := s.artifactRepo.SetMinutes(ctx, channelId, document); err != nil {
		s.logger.WarnContext(ctx, "failed to cache minutes", "channelId", channelId, "error", err)
		return
	}

	s.logger.InfoContext(ctx, "minutes document cached", "channelId", channelId, "bytes", len(document))
}

// PopMinutes returns the cached minutes document at most once.
func (s *service) PopMinutes(ctx context.Context, channelId string) ([]byte, error) {
	return s.artifactRepo.PopMinutes(ctx, channelId)
}

// PopTranscript returns the cached transcript at most once.
func (s *service) PopTranscript(ctx context.Context, channelId string) (string, error) {
	return s.artifactRepo.PopTranscript(ctx, channelId)
}

func formatTranscript(chunks []collaborator.TranscriptChunk) string {
	var b strings.Builder
	for _, chunk := range chunks {
		ts := time.Duration(chunk.TimestampMs) * time.Millisecond
		fmt.Fprintf(&b, "[%02d:%02d] ", int(ts.Minutes()), int(ts.Seconds())%60)
		if chunk.SpeakerName != "" {
			b.WriteString(chunk.SpeakerName)
			b.WriteString(": ")
		}
		b.WriteString(strings.TrimSpace(chunk.Text))
		b.WriteByte('\n')
	}

	return b.String()
}
