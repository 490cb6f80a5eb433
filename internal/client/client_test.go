package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
	"github.com/rocketscienceinc/scribbo-backend/internal/transport/framed"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedServer answers every request read from the pipe with whatever respond returns.
func scriptedServer(t *testing.T, conn net.Conn, respond func(req protocol.Message) []protocol.Message) {
	t.Helper()

	go func() {
		for {
			req, err := framed.Receive(conn)
			if err != nil {
				return
			}

			for _, msg := range respond(req) {
				if err = framed.Send(conn, msg); err != nil {
					return
				}
			}
		}
	}()
}

func newPipeClient(t *testing.T, options Options, respond func(req protocol.Message) []protocol.Message) *Client {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { _ = serverConn.Close() })

	scriptedServer(t, serverConn, respond)

	c := New(discardLogger(), clientConn, options)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func reply(req protocol.Message, msg protocol.Message) protocol.Message {
	msg.SetToken(req.Token())
	return msg
}

func TestClient_RoutesRepliesAmidBroadcasts(t *testing.T) {
	// Given: a server that pushes a broadcast before answering the join
	c := newPipeClient(t, Options{}, func(req protocol.Message) []protocol.Message {
		return []protocol.Message{
			protocol.NewPlayerJoined(entity.Player{ID: 7, Name: "someone"}, 2),
			reply(req, protocol.NewJoinSuccess(entity.Player{ID: 2, Color: "blue"}, entity.GameState{})),
		}
	})

	notices := make(chan protocol.Message, 1)
	c.OnNotification(protocol.TypePlayerJoined, func(msg protocol.Message) {
		notices <- msg
	})

	// When: joining
	joined, err := c.Join(context.Background(), "bob")

	// Then: the reply reaches the caller and the broadcast reaches the handler
	require.NoError(t, err)
	assert.Equal(t, 2, joined.PlayerID)
	assert.Equal(t, "blue", joined.Color)

	select {
	case msg := <-notices:
		assert.Equal(t, 7, msg.(*protocol.PlayerJoined).PlayerID)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	assert.Zero(t, c.Pending())
}

func TestClient_OutOfOrderReplies(t *testing.T) {
	// Given: a server that holds the first request and answers it after the second
	var mu sync.Mutex
	var held protocol.Message

	c := newPipeClient(t, Options{}, func(req protocol.Message) []protocol.Message {
		mu.Lock()
		defer mu.Unlock()

		if held == nil {
			held = req
			return nil
		}

		first := held.(*protocol.StartDrawing)
		second := req.(*protocol.StartDrawing)

		return []protocol.Message{
			reply(second, protocol.NewStartDrawingSuccess(entity.Square{Row: second.Row, Col: second.Col})),
			reply(first, protocol.NewStartDrawingSuccess(entity.Square{Row: first.Row, Col: first.Col})),
		}
	})

	// When: both requests are in flight
	firstToken, err := c.Send(protocol.NewStartDrawing(1, 1))
	require.NoError(t, err)
	secondToken, err := c.Send(protocol.NewStartDrawing(2, 2))
	require.NoError(t, err)

	// Then: each waiter gets its own reply
	second, err := c.Wait(context.Background(), secondToken)
	require.NoError(t, err)
	assert.Equal(t, 2, second.(*protocol.StartDrawingSuccess).Row)

	first, err := c.Wait(context.Background(), firstToken)
	require.NoError(t, err)
	assert.Equal(t, 1, first.(*protocol.StartDrawingSuccess).Row)
}

func TestClient_ServerError(t *testing.T) {
	c := newPipeClient(t, Options{}, func(req protocol.Message) []protocol.Message {
		return []protocol.Message{reply(req, protocol.NewError(apperror.ErrSquareLocked))}
	})

	err := c.StartDrawing(context.Background(), 2, 3)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, apperror.CodeSquareLocked, serverErr.Code)
	assert.ErrorIs(t, err, apperror.ErrSquareLocked)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestClient_Timeout(t *testing.T) {
	t.Run("Distinct from server errors", func(t *testing.T) {
		// Given: a server that never answers
		c := newPipeClient(t, Options{RequestTimeout: 50 * time.Millisecond}, func(protocol.Message) []protocol.Message {
			return nil
		})

		// When: waiting for a reply
		_, err := c.GetGameState(context.Background())

		// Then: a timeout is reported and the pending entry is gone
		require.ErrorIs(t, err, ErrTimeout)
		var serverErr *ServerError
		assert.False(t, errors.As(err, &serverErr))
		assert.Zero(t, c.Pending())
	})

	t.Run("Late reply becomes a notification", func(t *testing.T) {
		// Given: a server answering after the client gave up
		c := newPipeClient(t, Options{RequestTimeout: 30 * time.Millisecond}, func(req protocol.Message) []protocol.Message {
			time.Sleep(100 * time.Millisecond)
			return []protocol.Message{reply(req, protocol.NewGameState(entity.GameState{}))}
		})

		late := make(chan protocol.Message, 1)
		c.OnAnyNotification(func(msg protocol.Message) { late <- msg })

		// When: the request times out
		_, err := c.GetGameState(context.Background())
		require.ErrorIs(t, err, ErrTimeout)

		// Then: the reply still arrives, as an unsolicited message
		select {
		case msg := <-late:
			assert.Equal(t, protocol.TypeGameState, msg.MessageType())
		case <-time.After(time.Second):
			t.Fatal("late reply not delivered")
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		c := newPipeClient(t, Options{}, func(protocol.Message) []protocol.Message { return nil })

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.Request(ctx, protocol.NewGetGameState())

		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	})
}

func TestClient_PurgesStalePending(t *testing.T) {
	// Given: requests sent without anyone waiting and a server that never answers
	c := newPipeClient(t, Options{RequestTimeout: 20 * time.Millisecond, StaleAfter: 40 * time.Millisecond}, func(protocol.Message) []protocol.Message {
		return nil
	})

	for i := 0; i < 3; i++ {
		_, err := c.Send(protocol.NewGetGameState())
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Pending())

	// Then: they are dropped after the staleness window
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestClient_StaleWindowCoversRequestTimeout(t *testing.T) {
	t.Run("Short window is stretched to the request timeout", func(t *testing.T) {
		c := newPipeClient(t, Options{RequestTimeout: 300 * time.Millisecond, StaleAfter: time.Nanosecond}, func(protocol.Message) []protocol.Message {
			return nil
		})

		assert.Equal(t, 300*time.Millisecond, c.options.StaleAfter)
	})

	t.Run("Slow reply still reaches its waiter", func(t *testing.T) {
		// Given: a staleness window shorter than the request timeout and a slow server
		c := newPipeClient(t, Options{RequestTimeout: time.Second, StaleAfter: 20 * time.Millisecond}, func(req protocol.Message) []protocol.Message {
			time.Sleep(150 * time.Millisecond)
			return []protocol.Message{reply(req, protocol.NewGameState(entity.GameState{}))}
		})

		// When: waiting for the reply
		_, err := c.GetGameState(context.Background())

		// Then: the purge left the entry alone
		require.NoError(t, err)
		assert.Zero(t, c.Pending())
	})
}

func TestClient_Closed(t *testing.T) {
	t.Run("Server hangs up while a request waits", func(t *testing.T) {
		clientConn, serverConn := net.Pipe()
		c := New(discardLogger(), clientConn, Options{})
		defer c.Close()

		go func() {
			_, _ = framed.Receive(serverConn)
			_ = serverConn.Close()
		}()

		_, err := c.GetGameState(context.Background())

		require.ErrorIs(t, err, ErrClosed)
		assert.NotErrorIs(t, err, ErrTimeout)
		<-c.Done()
		assert.Error(t, c.Err())
	})

	t.Run("Requests after Close", func(t *testing.T) {
		c := newPipeClient(t, Options{}, func(protocol.Message) []protocol.Message { return nil })
		require.NoError(t, c.Close())

		_, err := c.Send(protocol.NewGetGameState())

		require.ErrorIs(t, err, ErrClosed)
		assert.NoError(t, c.Err())
	})

	t.Run("Wait for an unknown token", func(t *testing.T) {
		c := newPipeClient(t, Options{}, func(protocol.Message) []protocol.Message { return nil })

		_, err := c.Wait(context.Background(), "nope")

		assert.ErrorIs(t, err, ErrNotPending)
	})
}

func TestClient_FinishDrawing(t *testing.T) {
	c := newPipeClient(t, Options{}, func(req protocol.Message) []protocol.Message {
		finish := req.(*protocol.FinishDrawing)
		return []protocol.Message{reply(req, protocol.NewCaptureResult(entity.Capture{
			Square:   entity.Square{Row: finish.Row, Col: finish.Col},
			PlayerID: 1,
			Coverage: finish.Coverage,
			Captured: protocol.IsCapture(finish.Coverage),
		}))}
	})

	captured, err := c.FinishDrawing(context.Background(), 1, 1, 80)
	require.NoError(t, err)
	assert.True(t, captured.Captured)

	failed, err := c.FinishDrawing(context.Background(), 1, 2, 10)
	require.NoError(t, err)
	assert.False(t, failed.Captured)
	assert.InDelta(t, 10.0, failed.Coverage, 0.0001)
}
