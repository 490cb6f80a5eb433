package tcp

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
	"github.com/rocketscienceinc/scribbo-backend/internal/transport/framed"
)

func TestConnection_WriteLoop(t *testing.T) {
	t.Run("Oversize message is dropped and the connection kept", func(t *testing.T) {
		// Given: a connection with a running writer
		serverSide, clientSide := net.Pipe()
		defer clientSide.Close()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		conn := newConnection(serverSide, logger, 4, time.Second)
		defer conn.Close()

		go conn.writeLoop(logger)

		points := make([]protocol.Point, framed.MaxMessageSize/8)
		for i := range points {
			points[i] = protocol.Point{X: 1, Y: 1}
		}

		// When: an oversize update is queued ahead of a small message
		require.True(t, conn.Enqueue(protocol.NewDrawingUpdate(1, entity.Square{}, points)))
		require.True(t, conn.Enqueue(protocol.NewGetGameState()))

		// Then: only the small message arrives
		require.NoError(t, clientSide.SetReadDeadline(time.Now().Add(readWait)))
		msg, err := framed.Receive(clientSide)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeGetGameState, msg.MessageType())

		select {
		case <-conn.done:
			t.Fatal("connection closed")
		default:
		}
	})

	t.Run("Broken socket closes the connection", func(t *testing.T) {
		serverSide, clientSide := net.Pipe()
		require.NoError(t, clientSide.Close())

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		conn := newConnection(serverSide, logger, 4, time.Second)

		go conn.writeLoop(logger)
		require.True(t, conn.Enqueue(protocol.NewGetGameState()))

		select {
		case <-conn.done:
		case <-time.After(readWait):
			t.Fatal("connection not closed")
		}

		assert.False(t, conn.Enqueue(protocol.NewGetGameState()))
	})
}
