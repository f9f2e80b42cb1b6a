package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetsync/sfu-server/internal/repository/artifact"
)

// repo holds post-meeting artifacts under a TTL. GETDEL gives the one-shot
// pop semantics: a read removes the entry regardless of remaining TTL, and
// redis expiry covers the unread-past-TTL case.
type repo struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRepo(rc *redis.Client, ttl time.Duration) *repo {
	return &repo{rc: rc, ttl: ttl}
}

func (r repo) getMinutesKey(channelId string) string {
	return "minutes:" + channelId
}

func (r repo) getTranscriptKey(channelId string) string {
	return "transcript:" + channelId
}

func (r repo) SetMinutes(ctx context.Context, channelId string, document []byte) error {
	funcName := "artifact.redis.SetMinutes"
	slog.DebugContext(ctx, funcName, "channelId", channelId, "bytes", len(document))

	return r.rc.Set(ctx, r.getMinutesKey(channelId), document, r.ttl).Err()
}

func (r repo) PopMinutes(ctx context.Context, channelId string) ([]byte, error) {
	funcName := "artifact.redis.PopMinutes"
	slog.DebugContext(ctx, funcName, "channelId", channelId)
	document, err := r.rc.GetDel(ctx, r.getMinutesKey(channelId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, artifact.ErrNotFound
		}
		return nil, err
	}

	return document, nil
}

func (r repo) SetTranscript(ctx context.Context, channelId string, transcript string) error {
	funcName := "artifact.redis.SetTranscript"
	slog.DebugContext(ctx, funcName, "channelId", channelId, "chars", len(transcript))

	return r.rc.Set(ctx, r.getTranscriptKey(channelId), transcript, r.ttl).Err()
}

func (r repo) PopTranscript(ctx context.Context, channelId string) (string, error) {
	funcName := "artifact.redis.PopTranscript"
	slog.DebugContext(ctx, funcName, "channelId", channelId)
	transcript, err := r.rc.GetDel(ctx, r.getTranscriptKey(channelId)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", artifact.ErrNotFound
		}
		return "", err
	}

	return transcript, nil
}
