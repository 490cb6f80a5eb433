package tcp

import (
	"context"
	"fmt"
	"time"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
	"github.com/rocketscienceinc/scribbo-backend/internal/transport/framed"
)

func (that *Server) handleJoin(_ context.Context, conn *connection, msg protocol.Message) error {
	request, ok := msg.(*protocol.Join)
	if !ok {
		return apperror.ErrMalformedMessage
	}

	if conn.playerID != 0 {
		return fmt.Errorf("%w: player %d", apperror.ErrAlreadyJoined, conn.playerID)
	}

	player, _, err := that.store.Join(conn, request.Token(), request.Name)
	if err != nil {
		return err
	}

	conn.playerID = player.ID
	conn.logger = conn.logger.With("playerID", player.ID)

	return nil
}

func (that *Server) handleStartDrawing(_ context.Context, conn *connection, msg protocol.Message) error {
	request, ok := msg.(*protocol.StartDrawing)
	if !ok {
		return apperror.ErrMalformedMessage
	}

	if err := requireJoined(conn); err != nil {
		return err
	}

	sq := entity.Square{Row: request.Row, Col: request.Col}

	return that.store.StartDrawing(conn, request.Token(), conn.playerID, sq)
}

func (that *Server) handleDrawingData(_ context.Context, conn *connection, msg protocol.Message) error {
	request, ok := msg.(*protocol.DrawingData)
	if !ok {
		return apperror.ErrMalformedMessage
	}

	if err := requireJoined(conn); err != nil {
		return err
	}

	sq := entity.Square{Row: request.Row, Col: request.Col}

	// the relay is larger than the request and must still fit in a frame
	if err := framed.CheckSize(protocol.NewDrawingUpdate(conn.playerID, sq, request.Points)); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrMessageTooLarge, err)
	}

	return that.store.SubmitDrawingData(conn, request.Token(), conn.playerID, sq, request.Points)
}

func (that *Server) handleFinishDrawing(ctx context.Context, conn *connection, msg protocol.Message) error {
	request, ok := msg.(*protocol.FinishDrawing)
	if !ok {
		return apperror.ErrMalformedMessage
	}

	if err := requireJoined(conn); err != nil {
		return err
	}

	sq := entity.Square{Row: request.Row, Col: request.Col}

	capture, err := that.store.FinishDrawing(conn, request.Token(), conn.playerID, sq, request.Coverage)
	if err != nil {
		return err
	}

	that.metrics.ObserveCapture(capture.Captured)

	if capture.GameOver {
		that.archiveResult(ctx)
	}

	return nil
}

func (that *Server) handleGetGameState(_ context.Context, conn *connection, msg protocol.Message) error {
	that.store.State(conn, msg.Token())

	return nil
}

// archiveResult - records the finished game once. Failures are only logged.
func (that *Server) archiveResult(ctx context.Context) {
	log := that.logger.With("method", "archiveResult")

	if that.archive == nil || !that.archived.CompareAndSwap(false, true) {
		return
	}

	id, err := that.archive.Save(ctx, that.store.Result(time.Now().UTC()))
	if err != nil {
		log.Error("failed to archive game result", "error", err)
		return
	}

	log.Info("game result archived", "resultID", id)
}

func requireJoined(conn *connection) error {
	if conn.playerID == 0 {
		return apperror.ErrNotJoined
	}

	return nil
}
