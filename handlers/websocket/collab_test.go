package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecollab-server/collab"
	"codecollab-server/core"
)

func TestSocketCors(t *testing.T) {
	assert.Equal(t, "*", socketCors(nil).Origin)
	assert.Equal(t, "*", socketCors([]string{"http://a", "*"}).Origin)

	cors := socketCors([]string{"http://a", "http://b"})
	assert.Equal(t, []any{"http://a", "http://b"}, cors.Origin)
	assert.True(t, cors.Credentials)
}

func TestExtractAck(t *testing.T) {
	var got []any
	ack := func(args []any, err error) { got = args }

	invoker, args := extractAck([]any{map[string]any{"roomId": "r"}, ack})
	require.NotNil(t, invoker)
	assert.Len(t, args, 1)

	respondWithAck(invoker, nil)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"status": "ok"}, got[0])

	respondWithAck(invoker, errors.New("boom"))
	assert.Equal(t, map[string]any{"status": "error", "error": "boom"}, got[0])
}

func TestExtractAck_VariadicAndPlain(t *testing.T) {
	var variadic []any
	invoker, _ := extractAck([]any{func(args ...any) { variadic = args }})
	require.NotNil(t, invoker)
	respondWithAck(invoker, nil)
	require.Len(t, variadic, 1)

	var gotErr error
	var gotPayload map[string]any
	invoker, _ = extractAck([]any{func(err error, payload map[string]any) { gotErr, gotPayload = err, payload }})
	respondWithAck(invoker, errors.New("bad"))
	assert.EqualError(t, gotErr, "bad")
	assert.Equal(t, "error", gotPayload["status"])

	invoker, args := extractAck([]any{"no ack here"})
	assert.Nil(t, invoker)
	assert.Equal(t, []any{"no ack here"}, args)
}

func TestSocketTransport_EmptyServer(t *testing.T) {
	opts := Options{LegacyEvents: true, FetchTimeout: time.Second}
	srv := NewSocketIOServer(opts)
	transport := NewSocketTransport(srv, opts)
	ctx := context.Background()

	assert.False(t, transport.Owns("nobody"))

	members, err := transport.Members(ctx, "room")
	require.NoError(t, err)
	assert.Empty(t, members)

	rooms, err := transport.Rooms(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	assert.ErrorIs(t, transport.Join(ctx, "nobody", "room"), collab.ErrUnknownConnection)
	assert.NoError(t, transport.Leave(ctx, "nobody", "room"))

	assert.NoError(t, transport.SendRoom(ctx, "room", core.MemberListUpdated(nil)))
	assert.NoError(t, transport.SendOthers(ctx, "room", "nobody", core.FieldChanged(core.FieldCode, "x")))
}

func TestSocketTransport_ComposesWithHub(t *testing.T) {
	opts := Options{FetchTimeout: time.Second}
	srv := NewSocketIOServer(opts)
	hub := NewHub()
	hub.register(&Client{id: "ws-1", hub: hub, send: make(chan []byte, 8)})

	engine := collab.NewEngine(collab.NewMultiTransport(NewSocketTransport(srv, opts), hub), nil)
	ctx := context.Background()
	engine.Connect("ws-1")
	require.NoError(t, engine.Join(ctx, "ws-1", "room", "ann"))

	summaries := engine.Rooms(ctx)
	assert.Empty(t, summaries)
	assert.Equal(t, collab.StateJoined, engine.State("ws-1"))
}
