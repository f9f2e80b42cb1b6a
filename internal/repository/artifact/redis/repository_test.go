package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsync/sfu-server/internal/repository/artifact"
)

func newTestRepo(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *repo) {
	t.Helper()
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})

	return s, NewRepo(rc, ttl)
}

func TestPopMinutesOnce(t *testing.T) {
	_, r := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, r.SetMinutes(ctx, "default:room1", []byte("doc")))

	document, err := r.PopMinutes(ctx, "default:room1")
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), document)

	_, err = r.PopMinutes(ctx, "default:room1")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestPopMinutesExpired(t *testing.T) {
	s, r := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, r.SetMinutes(ctx, "default:room1", []byte("doc")))
	s.FastForward(2 * time.Minute)

	_, err := r.PopMinutes(ctx, "default:room1")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestPopTranscriptOnce(t *testing.T) {
	_, r := newTestRepo(t, time.Minute)
	ctx := context.Background()

	_, err := r.PopTranscript(ctx, "default:room1")
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	require.NoError(t, r.SetTranscript(ctx, "default:room1", "[00:01] hello"))

	transcript, err := r.PopTranscript(ctx, "default:room1")
	require.NoError(t, err)
	assert.Equal(t, "[00:01] hello", transcript)

	_, err = r.PopTranscript(ctx, "default:room1")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestArtifactsAreIndependent(t *testing.T) {
	_, r := newTestRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, r.SetMinutes(ctx, "default:room1", []byte("doc")))
	require.NoError(t, r.SetTranscript(ctx, "default:room1", "text"))

	_, err := r.PopMinutes(ctx, "default:room1")
	require.NoError(t, err)

	transcript, err := r.PopTranscript(ctx, "default:room1")
	require.NoError(t, err)
	assert.Equal(t, "text", transcript)
}
