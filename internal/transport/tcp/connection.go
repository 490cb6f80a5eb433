package tcp

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
	"github.com/rocketscienceinc/scribbo-backend/internal/transport/framed"
)

// connection is one accepted client. The reader goroutine owns playerID and logger;
// outbound messages are written by a single writer goroutine in queue order.
// The writer never touches logger.
type connection struct {
	conn   net.Conn
	logger *slog.Logger

	outbound     chan protocol.Message
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration

	playerID int
}

func newConnection(conn net.Conn, logger *slog.Logger, queueSize int, writeTimeout time.Duration) *connection {
	return &connection{
		conn:         conn,
		logger:       logger,
		outbound:     make(chan protocol.Message, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Enqueue - queues msg without blocking. Returns false when the queue is full or the connection is closed.
func (that *connection) Enqueue(msg protocol.Message) bool {
	select {
	case <-that.done:
		return false
	default:
	}

	select {
	case that.outbound <- msg:
		return true
	default:
		return false
	}
}

// Close - stops the writer and closes the socket, which unblocks the reader.
func (that *connection) Close() error {
	var err error

	that.closeOnce.Do(func() {
		close(that.done)
		err = that.conn.Close()
	})

	return err
}

// writeLoop - drains the outbound queue. A message too large for a frame is dropped;
// any other send failure closes the connection.
func (that *connection) writeLoop(log *slog.Logger) {
	for {
		select {
		case <-that.done:
			return
		case msg := <-that.outbound:
			if that.writeTimeout > 0 {
				if err := that.conn.SetWriteDeadline(time.Now().Add(that.writeTimeout)); err != nil {
					log.Debug("failed to set write deadline", "error", err)
				}
			}

			err := framed.Send(that.conn, msg)
			if errors.Is(err, framed.ErrMessageTooLarge) {
				log.Error("dropped message that does not fit in a frame", "type", msg.MessageType(), "error", err)
				continue
			}

			if err != nil {
				log.Warn("failed to send message, closing connection", "type", msg.MessageType(), "error", err)
				_ = that.Close()
				return
			}
		}
	}
}
