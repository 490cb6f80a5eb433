package hub

import (
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/scribbo-backend/internal/metrics"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
)

// Peer is a registered connection able to queue outbound messages.
type Peer interface {
	// Enqueue must not block; false means the message could not be queued.
	Enqueue(msg protocol.Message) bool
	// Close must be safe to call more than once and from any goroutine.
	Close() error
}

// Hub fans notifications out to every registered peer.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	peers map[Peer]struct{}
}

func New(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:  logger.With("component", "hub"),
		metrics: m,
		peers:   make(map[Peer]struct{}),
	}
}

// Register - adds peer to the broadcast set.
func (that *Hub) Register(peer Peer) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.peers[peer] = struct{}{}
}

// Unregister - removes peer from the broadcast set. Unknown peers are ignored.
func (that *Hub) Unregister(peer Peer) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.peers, peer)
}

func (that *Hub) Len() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.peers)
}

// Broadcast - queues msg on every peer except exclude, which may be nil.
// A peer that cannot take the message is dropped and closed; its reader then runs the disconnect cleanup.
func (that *Hub) Broadcast(msg protocol.Message, exclude Peer) {
	log := that.logger.With("method", "Broadcast", "type", msg.MessageType())

	var failed []Peer

	that.mu.RLock()
	for peer := range that.peers {
		if exclude != nil && peer == exclude {
			continue
		}

		if !peer.Enqueue(msg) {
			failed = append(failed, peer)
		}
	}
	that.mu.RUnlock()

	for _, peer := range failed {
		log.Warn("peer outbound queue unavailable, dropping peer")

		that.Unregister(peer)
		that.metrics.BroadcastDrops.Inc()

		if err := peer.Close(); err != nil {
			log.Debug("failed to close dropped peer", "error", err)
		}
	}
}
