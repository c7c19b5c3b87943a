package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/odit-bit/rcaccelerator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(t.Context(), "redis://"+mr.Addr(), time.Hour, 4)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	return map[string]Store{
		"memory": NewMemory(time.Hour, 4),
		"redis":  r,
	}
}

func turn(i int) []model.Message {
	return []model.Message{
		model.NewTextMessage(model.RoleUser, fmt.Sprintf("q%d", i)),
		model.NewTextMessage(model.RoleAssistant, fmt.Sprintf("a%d", i)),
	}
}

func TestStore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			msgs, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, msgs)

			require.NoError(t, s.Append(ctx, "s1", turn(1)...))
			msgs, err = s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, turn(1), msgs)

			// capped to the latest four messages
			require.NoError(t, s.Append(ctx, "s1", turn(2)...))
			require.NoError(t, s.Append(ctx, "s1", turn(3)...))
			msgs, err = s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, append(turn(2), turn(3)...), msgs)

			// sessions are isolated
			other, err := s.Load(ctx, "s2")
			require.NoError(t, err)
			assert.Empty(t, other)

			require.NoError(t, s.Clear(ctx, "s1"))
			msgs, err = s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, msgs)
		})
	}
}

func TestRedis_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis(t.Context(), "redis://"+mr.Addr(), time.Minute, 10)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Append(t.Context(), "s", turn(1)...))
	assert.Equal(t, time.Minute, mr.TTL("history:s"))

	mr.FastForward(2 * time.Minute)
	msgs, err := r.Load(t.Context(), "s")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOpen(t *testing.T) {
	s, err := Open(t.Context(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(t.Context(), Config{Backend: BackendRedis})
	require.Error(t, err)

	_, err = Open(t.Context(), Config{Backend: "etcd"})
	require.Error(t, err)
}
