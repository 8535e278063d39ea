package sysio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/scriptvm/pkg/values"
)

func TestAsyncResultLifecycle(t *testing.T) {
	ar := NewAsyncResult[int]()

	out := ar.Poll()
	assert.False(t, out.Ready)
	assert.False(t, out.AlreadyConsumed)

	ok := ar.Complete(42)
	assert.True(t, ok)

	ok = ar.Complete(7)
	assert.False(t, ok, "second Complete must fail")

	out = ar.Poll()
	assert.True(t, out.Ready)
	assert.Equal(t, 42, out.Value)

	out = ar.Poll()
	assert.True(t, out.AlreadyConsumed)
}

func TestBarrierCompletesWhenAllGrantsReleased(t *testing.T) {
	b, grants := NewBarrier(2)
	cond := b.Condition()
	assert.False(t, cond.IsCompleted())

	extra := b.Grant()
	assert.False(t, cond.IsCompleted())

	grants[0].Release()
	grants[1].Release()
	assert.False(t, cond.IsCompleted(), "extra grant still outstanding")

	extra.Release()
	assert.True(t, cond.IsCompleted())

	extra.Release() // idempotent
	assert.True(t, cond.IsCompleted())
}

func TestLocalSystemPerformRequestNotSupported(t *testing.T) {
	sys := NewLocalSystem(TimeTimeless)
	defer sys.Close()

	out, _ := sys.PerformRequest(Request{Kind: FeatureInput}, "Sprite1")
	assert.False(t, out.Async)
	assert.NotEmpty(t, out.Result.Err)
}

func TestLocalSystemPerformRequestSync(t *testing.T) {
	sys := NewLocalSystem(TimeTimeless)
	defer sys.Close()

	sys.RegisterRequestHandler(FeatureInput, func(ctx context.Context, req Request, entity string) (values.Value, error) {
		return values.Str("hello " + entity), nil
	})

	out, _ := sys.PerformRequest(Request{Kind: FeatureInput}, "Sprite1")
	require.False(t, out.Async)
	require.Empty(t, out.Result.Err)
	s, ok := out.Result.Value.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello Sprite1", s)
}

func TestLocalSystemSpawnRequestResolvesAsync(t *testing.T) {
	sys := NewLocalSystem(TimeTimeless)
	defer sys.Close()

	key := sys.SpawnRequest(func(ctx context.Context) (values.Value, error) {
		return values.Num(values.Int(99)), nil
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		out := sys.PollRequest(key)
		if out.Ready {
			n, _ := out.Value.Value.AsNumber()
			assert.Equal(t, float64(99), n.Float())
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for spawned request")
}

func TestLocalSystemSpawnCommandPropagatesError(t *testing.T) {
	sys := NewLocalSystem(TimeTimeless)
	defer sys.Close()

	key := sys.SpawnCommand(func(ctx context.Context) error {
		return errors.New("boom")
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		out := sys.PollCommand(key)
		if out.Ready {
			assert.Equal(t, "boom", out.Value.Err)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for spawned command")
}

func TestLocalSystemLoopbackMessageAndReply(t *testing.T) {
	sys := NewLocalSystem(TimeTimeless)
	defer sys.Close()

	replyKey, hasReply := sys.SendMessage("ping", nil, []string{"Sprite2"}, true)
	require.True(t, hasReply)

	msg, ok := sys.ReceiveMessage()
	require.True(t, ok)
	assert.Equal(t, "ping", msg.MsgType)

	sys.SendReply(msg.ReplyKey, `"pong"`)

	out := sys.PollReply(replyKey)
	require.True(t, out.Ready)
	require.NotNil(t, out.Value)
	assert.Equal(t, `"pong"`, *out.Value)
}

func TestLocationTableLookup(t *testing.T) {
	base := map[int]SourceLocation{
		10: {ScriptName: "main", Line: 3, Column: 1},
	}
	lt := NewLocationTable(base, 4)
	loc, ok := lt.Lookup(10)
	require.True(t, ok)
	assert.Equal(t, 3, loc.Line)

	_, ok = lt.Lookup(999)
	assert.False(t, ok)
}
