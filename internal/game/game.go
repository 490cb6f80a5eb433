package game

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/hub"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
)

type broadcaster interface {
	Register(peer hub.Peer)
	Unregister(peer hub.Peer)
	Broadcast(msg protocol.Message, exclude hub.Peer)
}

// Store owns the session. Every operation runs under one mutex, and every message it
// produces (direct reply or broadcast) is queued before the mutex is released, so each
// peer sees messages in the order the mutations happened.
type Store struct {
	logger *slog.Logger
	hub    broadcaster

	mu   sync.Mutex
	game *entity.Game
}

func NewStore(logger *slog.Logger, hub broadcaster, maxPlayers int) *Store {
	return &Store{
		logger: logger.With("component", "store"),
		hub:    hub,
		game:   entity.NewGame(maxPlayers),
	}
}

// Join - adds a player bound to origin, replies with join_success and tells everyone else.
func (that *Store) Join(origin hub.Peer, token, name string) (entity.Player, entity.GameState, error) {
	log := that.logger.With("method", "Join")

	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.game.AddPlayer(name)
	if err != nil {
		return entity.Player{}, entity.GameState{}, fmt.Errorf("failed to add player: %w", err)
	}

	state := that.game.Snapshot()

	that.hub.Register(origin)
	that.reply(origin, token, protocol.NewJoinSuccess(*player, state))
	that.hub.Broadcast(protocol.NewPlayerJoined(*player, len(that.game.Players)), origin)

	log.Info("player joined", "playerID", player.ID, "name", player.Name, "color", player.Color)

	return *player, state, nil
}

// StartDrawing - locks sq for playerID and announces the lock.
func (that *Store) StartDrawing(origin hub.Peer, token string, playerID int, sq entity.Square) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.game.StartDrawing(playerID, sq); err != nil {
		return fmt.Errorf("failed to start drawing: %w", err)
	}

	that.reply(origin, token, protocol.NewStartDrawingSuccess(sq))
	that.hub.Broadcast(protocol.NewSquareLocked(playerID, sq), origin)

	return nil
}

// SubmitDrawingData - relays stroke points from the holder of sq. Nothing is stored.
func (that *Store) SubmitDrawingData(origin hub.Peer, token string, playerID int, sq entity.Square, points []protocol.Point) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.game.ConfirmDrawing(playerID, sq); err != nil {
		return fmt.Errorf("failed to accept drawing data: %w", err)
	}

	that.reply(origin, token, protocol.NewDrawingDataReceived())
	that.hub.Broadcast(protocol.NewDrawingUpdate(playerID, sq, points), origin)

	return nil
}

// FinishDrawing - releases sq and captures it on enough coverage. The drawer gets the outcome
// as a reply, the other peers as a broadcast of the same type.
func (that *Store) FinishDrawing(origin hub.Peer, token string, playerID int, sq entity.Square, coverage float64) (entity.Capture, error) {
	log := that.logger.With("method", "FinishDrawing")

	that.mu.Lock()
	defer that.mu.Unlock()

	capture, err := that.game.FinishDrawing(playerID, sq, coverage)
	if err != nil {
		return entity.Capture{}, fmt.Errorf("failed to finish drawing: %w", err)
	}

	that.reply(origin, token, protocol.NewCaptureResult(capture))
	that.hub.Broadcast(protocol.NewCaptureResult(capture), origin)

	if capture.GameOver {
		log.Info("game over", "winner", capture.WinnerID, "scores", capture.FinalScores)
	}

	return capture, nil
}

// State - replies with a snapshot of the session. Allowed after the game ended.
func (that *Store) State(origin hub.Peer, token string) entity.GameState {
	that.mu.Lock()
	defer that.mu.Unlock()

	state := that.game.Snapshot()
	that.reply(origin, token, protocol.NewGameState(state))

	return state
}

// Disconnect - unbinds origin, frees every square playerID held and tells the remaining peers.
// A zero playerID only unregisters the connection.
func (that *Store) Disconnect(origin hub.Peer, playerID int) (entity.Player, []entity.Square, error) {
	log := that.logger.With("method", "Disconnect")

	that.mu.Lock()
	defer that.mu.Unlock()

	that.hub.Unregister(origin)

	if playerID == 0 {
		return entity.Player{}, nil, nil
	}

	player, freed, err := that.game.RemovePlayer(playerID)
	if err != nil {
		return entity.Player{}, nil, fmt.Errorf("failed to remove player: %w", err)
	}

	that.hub.Broadcast(protocol.NewPlayerLeft(player, freed), nil)

	log.Info("player left", "playerID", player.ID, "squaresFreed", len(freed))

	return player, freed, nil
}

// Snapshot - consistent copy of the session.
func (that *Store) Snapshot() entity.GameState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game.Snapshot()
}

// Result - archive record of the session as of now.
func (that *Store) Result(finishedAt time.Time) entity.Result {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game.Result(finishedAt)
}

func (that *Store) reply(origin hub.Peer, token string, msg protocol.Message) {
	msg.SetToken(token)

	if !origin.Enqueue(msg) {
		that.logger.Warn("failed to queue reply, closing connection", "type", msg.MessageType())
		_ = origin.Close()
	}
}
