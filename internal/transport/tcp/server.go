package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/hub"
	"github.com/rocketscienceinc/scribbo-backend/internal/metrics"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
	"github.com/rocketscienceinc/scribbo-backend/internal/transport/framed"
)

const defaultOutboundQueue = 256

type store interface {
	Join(origin hub.Peer, token, name string) (entity.Player, entity.GameState, error)
	StartDrawing(origin hub.Peer, token string, playerID int, sq entity.Square) error
	SubmitDrawingData(origin hub.Peer, token string, playerID int, sq entity.Square, points []protocol.Point) error
	FinishDrawing(origin hub.Peer, token string, playerID int, sq entity.Square, coverage float64) (entity.Capture, error)
	State(origin hub.Peer, token string) entity.GameState
	Disconnect(origin hub.Peer, playerID int) (entity.Player, []entity.Square, error)
	Result(finishedAt time.Time) entity.Result
}

type archive interface {
	Save(ctx context.Context, result entity.Result) (string, error)
}

type Options struct {
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	OutboundQueue int
}

type handlerFunc func(ctx context.Context, conn *connection, msg protocol.Message) error

type Server struct {
	logger  *slog.Logger
	store   store
	archive archive
	metrics *metrics.Metrics
	options Options

	handlers map[protocol.Type]handlerFunc

	mu      sync.Mutex
	conns   map[*connection]struct{}
	closing bool
	wg      sync.WaitGroup

	archived atomic.Bool
}

// New - creates a game server. archive may be nil, in which case finished games are not recorded.
func New(logger *slog.Logger, store store, archive archive, m *metrics.Metrics, options Options) *Server {
	if options.OutboundQueue <= 0 {
		options.OutboundQueue = defaultOutboundQueue
	}

	server := &Server{
		logger:  logger.With("component", "tcp"),
		store:   store,
		archive: archive,
		metrics: m,
		options: options,

		handlers: make(map[protocol.Type]handlerFunc),
		conns:    make(map[*connection]struct{}),
	}

	server.handlers[protocol.TypeJoin] = server.handleJoin
	server.handlers[protocol.TypeStartDrawing] = server.handleStartDrawing
	server.handlers[protocol.TypeDrawingData] = server.handleDrawingData
	server.handlers[protocol.TypeFinishDrawing] = server.handleFinishDrawing
	server.handlers[protocol.TypeGetGameState] = server.handleGetGameState

	return server
}

// Start - listens on addr and serves until ctx is canceled.
func (that *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return that.Serve(ctx, listener)
}

// Serve - accepts connections from listener until ctx is canceled or accepting fails.
// On return every connection has been closed and cleaned up.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	log := that.logger.With("method", "Serve")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	log.Info("accepting connections", "addr", listener.Addr().String())

	var serveErr error
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() == nil {
				serveErr = fmt.Errorf("failed to accept connection: %w", err)
			}
			break
		}

		that.wg.Add(1)
		go that.handleConnection(ctx, conn)
	}

	cancel()
	that.closeConnections()
	that.wg.Wait()

	log.Info("server stopped")

	return serveErr
}

// handleConnection - reads frames until the peer goes away, then runs the disconnect cleanup.
func (that *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	defer that.wg.Done()

	logger := that.logger.With("remote", netConn.RemoteAddr().String())
	conn := newConnection(netConn, logger, that.options.OutboundQueue, that.options.WriteTimeout)

	if !that.track(conn) {
		_ = netConn.Close()
		return
	}

	that.metrics.ConnectionsActive.Inc()
	logger.Info("client connected")

	writerLog := logger.With("method", "writeLoop")

	that.wg.Add(1)
	go func() {
		defer that.wg.Done()
		conn.writeLoop(writerLog)
	}()

	defer that.closeConnectionAndRecover(conn)

	for {
		if that.options.ReadTimeout > 0 {
			if err := netConn.SetReadDeadline(time.Now().Add(that.options.ReadTimeout)); err != nil {
				conn.logger.Debug("failed to set read deadline", "error", err)
			}
		}

		data, err := framed.ReadFrame(netConn)
		if err != nil {
			that.logReadError(conn, err)
			return
		}

		that.processMessage(ctx, conn, data)
	}
}

// closeConnectionAndRecover - stops a panicking worker without taking the server down and releases the player.
func (that *Server) closeConnectionAndRecover(conn *connection) {
	if r := recover(); r != nil {
		conn.logger.Error("recovered from panic in connection worker", "panic", r, "stack", string(debug.Stack()))
	}

	if _, _, err := that.store.Disconnect(conn, conn.playerID); err != nil {
		conn.logger.Error("failed to clean up player", "error", err)
	}

	_ = conn.Close()
	that.untrack(conn)
	that.metrics.ConnectionsActive.Dec()

	conn.logger.Info("client disconnected")
}

func (that *Server) logReadError(conn *connection, err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, framed.ErrConnectionClosed), errors.Is(err, net.ErrClosed):
		conn.logger.Debug("connection closed", "error", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		conn.logger.Info("read timed out, dropping idle connection")
	default:
		conn.logger.Warn("failed to read frame", "error", err)
	}
}

// processMessage - decodes one frame and dispatches it. Every failure is answered with an error message.
func (that *Server) processMessage(ctx context.Context, conn *connection, data []byte) {
	log := conn.logger.With("method", "processMessage")

	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn("failed to decode message", "error", err)
		that.sendErrorResponse(conn, protocol.Peek(data).RequestID, err)
		return
	}

	handler, ok := that.handlers[msg.MessageType()]
	if !ok {
		that.sendErrorResponse(conn, msg.Token(), fmt.Errorf("%w: %s is not a request", apperror.ErrUnknownMessageType, msg.MessageType()))
		return
	}

	that.metrics.Messages.WithLabelValues(string(msg.MessageType())).Inc()

	if err = protocol.Validate(msg); err != nil {
		that.sendErrorResponse(conn, msg.Token(), err)
		return
	}

	if err = handler(ctx, conn, msg); err != nil {
		log.Info("request rejected", "type", msg.MessageType(), "error", err)
		that.sendErrorResponse(conn, msg.Token(), err)
	}
}

func (that *Server) sendErrorResponse(conn *connection, token string, err error) {
	response := protocol.NewError(err)
	response.SetToken(token)

	if !conn.Enqueue(response) {
		conn.logger.Warn("failed to queue error response, closing connection")
		_ = conn.Close()
	}
}

func (that *Server) track(conn *connection) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closing {
		return false
	}

	that.conns[conn] = struct{}{}

	return true
}

func (that *Server) untrack(conn *connection) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.conns, conn)
}

func (that *Server) closeConnections() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.closing = true
	for conn := range that.conns {
		_ = conn.Close()
	}
}
