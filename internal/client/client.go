package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
	"github.com/rocketscienceinc/scribbo-backend/internal/transport/framed"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultStaleAfter     = 10 * time.Second

	minPurgeInterval = 10 * time.Millisecond
)

type Options struct {
	// RequestTimeout bounds how long Wait blocks for a reply.
	RequestTimeout time.Duration
	// StaleAfter is the age after which an unclaimed pending entry is dropped.
	StaleAfter time.Duration
}

// NotificationHandler receives server messages that do not answer a pending request.
// Handlers run on the receiver goroutine and must not block.
type NotificationHandler func(msg protocol.Message)

type pendingRequest struct {
	msgType protocol.Type
	sentAt  time.Time
	reply   chan protocol.Message
}

// Client multiplexes requests and notifications over one framed connection.
type Client struct {
	logger  *slog.Logger
	conn    net.Conn
	options Options

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]*pendingRequest
	handlers map[protocol.Type][]NotificationHandler
	fallback []NotificationHandler

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// Dial - connects to a game server.
func Dial(ctx context.Context, logger *slog.Logger, addr string, options Options) (*Client, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return New(logger, conn, options), nil
}

// New - wraps an established connection and starts the receiver.
func New(logger *slog.Logger, conn net.Conn, options Options) *Client {
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = DefaultRequestTimeout
	}

	if options.StaleAfter <= 0 {
		options.StaleAfter = DefaultStaleAfter
	}

	// a waiter must never lose its entry to the purge
	if options.StaleAfter < options.RequestTimeout {
		options.StaleAfter = options.RequestTimeout
	}

	client := &Client{
		logger:   logger.With("component", "client"),
		conn:     conn,
		options:  options,
		pending:  make(map[string]*pendingRequest),
		handlers: make(map[protocol.Type][]NotificationHandler),
		done:     make(chan struct{}),
	}

	client.wg.Add(2)
	go client.receiveLoop()
	go client.purgeLoop()

	return client
}

// OnNotification - registers handler for unsolicited messages of type t.
func (that *Client) OnNotification(t protocol.Type, handler NotificationHandler) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.handlers[t] = append(that.handlers[t], handler)
}

// OnAnyNotification - registers handler for unsolicited messages without a type-specific handler.
func (that *Client) OnAnyNotification(handler NotificationHandler) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.fallback = append(that.fallback, handler)
}

// Send - tags msg with a fresh request id, records it as pending and writes it. The reply is
// collected with Wait; unclaimed replies are dropped once older than StaleAfter.
func (that *Client) Send(msg protocol.Message) (string, error) {
	select {
	case <-that.done:
		return "", that.closedError()
	default:
	}

	token := uuid.NewString()
	msg.SetToken(token)

	that.mu.Lock()
	that.pending[token] = &pendingRequest{
		msgType: msg.MessageType(),
		sentAt:  time.Now(),
		reply:   make(chan protocol.Message, 1),
	}
	that.mu.Unlock()

	that.writeMu.Lock()
	err := framed.Send(that.conn, msg)
	that.writeMu.Unlock()

	if err != nil {
		that.forget(token)

		select {
		case <-that.done:
			return "", that.closedError()
		default:
			return "", fmt.Errorf("failed to send %s: %w", msg.MessageType(), err)
		}
	}

	return token, nil
}

// Wait - blocks until the reply for token arrives, RequestTimeout passes, ctx ends or the client closes.
// An error reply is returned as *ServerError.
func (that *Client) Wait(ctx context.Context, token string) (protocol.Message, error) {
	that.mu.Lock()
	request, ok := that.pending[token]
	that.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPending, token)
	}

	defer that.forget(token)

	timer := time.NewTimer(that.options.RequestTimeout)
	defer timer.Stop()

	select {
	case msg := <-request.reply:
		return replyResult(msg)
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, request.msgType, that.options.RequestTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", request.msgType, ctx.Err())
	case <-that.done:
		select {
		case msg := <-request.reply:
			return replyResult(msg)
		default:
			return nil, that.closedError()
		}
	}
}

// Request - Send followed by Wait.
func (that *Client) Request(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	token, err := that.Send(msg)
	if err != nil {
		return nil, err
	}

	return that.Wait(ctx, token)
}

// Pending - number of requests still awaiting a reply.
func (that *Client) Pending() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.pending)
}

// Done - closed once the connection is gone.
func (that *Client) Done() <-chan struct{} {
	return that.done
}

// Err - the reason the client stopped, nil while it is running or after a plain Close.
func (that *Client) Err() error {
	select {
	case <-that.done:
		return that.closeErr
	default:
		return nil
	}
}

func (that *Client) Close() error {
	that.stop(nil)
	that.wg.Wait()

	return nil
}

func (that *Client) stop(cause error) {
	that.closeOnce.Do(func() {
		that.closeErr = cause
		close(that.done)
		_ = that.conn.Close()
	})
}

func (that *Client) closedError() error {
	if that.closeErr != nil {
		return fmt.Errorf("%w: %w", ErrClosed, that.closeErr)
	}

	return ErrClosed
}

func (that *Client) forget(token string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.pending, token)
}

// receiveLoop - routes replies to their pending entry and everything else to notification handlers.
func (that *Client) receiveLoop() {
	defer that.wg.Done()

	log := that.logger.With("method", "receiveLoop")

	for {
		msg, err := framed.Receive(that.conn)
		if err != nil {
			if errors.Is(err, framed.ErrMalformedMessage) {
				log.Warn("skipping undecodable message", "error", err)
				continue
			}

			select {
			case <-that.done:
			default:
				log.Info("connection lost", "error", err)
				that.stop(err)
			}

			return
		}

		if that.deliver(msg) {
			continue
		}

		that.notify(msg)
	}
}

func (that *Client) deliver(msg protocol.Message) bool {
	token := msg.Token()
	if token == "" {
		return false
	}

	that.mu.Lock()
	request, ok := that.pending[token]
	that.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case request.reply <- msg:
	default:
		that.logger.Warn("duplicate reply dropped", "requestID", token, "type", msg.MessageType())
	}

	return true
}

func (that *Client) notify(msg protocol.Message) {
	that.mu.Lock()
	handlers := that.handlers[msg.MessageType()]
	if len(handlers) == 0 {
		handlers = that.fallback
	}
	handlers = append([]NotificationHandler(nil), handlers...)
	that.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}

// purgeLoop - drops pending entries nobody claimed within StaleAfter.
func (that *Client) purgeLoop() {
	defer that.wg.Done()

	ticker := time.NewTicker(max(that.options.StaleAfter/2, minPurgeInterval))
	defer ticker.Stop()

	for {
		select {
		case <-that.done:
			return
		case now := <-ticker.C:
			that.purgeStale(now)
		}
	}
}

func (that *Client) purgeStale(now time.Time) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for token, request := range that.pending {
		if now.Sub(request.sentAt) > that.options.StaleAfter {
			delete(that.pending, token)
			that.logger.Debug("dropped stale pending request", "requestID", token, "type", request.msgType)
		}
	}
}

func replyResult(msg protocol.Message) (protocol.Message, error) {
	if failure, ok := msg.(*protocol.Error); ok {
		return nil, &ServerError{RequestID: failure.Token(), Code: failure.Code, Message: failure.Message}
	}

	return msg, nil
}
