package client

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
)

// FinishResult is the outcome of finishing a drawing.
type FinishResult struct {
	Captured    bool
	Coverage    float64
	GameOver    bool
	WinnerID    *int
	FinalScores map[int]int
}

func (that *Client) Join(ctx context.Context, name string) (*protocol.JoinSuccess, error) {
	reply, err := that.Request(ctx, protocol.NewJoin(name))
	if err != nil {
		return nil, err
	}

	return expect[*protocol.JoinSuccess](reply)
}

func (that *Client) StartDrawing(ctx context.Context, row, col int) error {
	reply, err := that.Request(ctx, protocol.NewStartDrawing(row, col))
	if err != nil {
		return err
	}

	_, err = expect[*protocol.StartDrawingSuccess](reply)

	return err
}

func (that *Client) SendDrawingData(ctx context.Context, row, col int, points []protocol.Point) error {
	reply, err := that.Request(ctx, protocol.NewDrawingData(row, col, points))
	if err != nil {
		return err
	}

	_, err = expect[*protocol.DrawingDataReceived](reply)

	return err
}

func (that *Client) FinishDrawing(ctx context.Context, row, col int, coverage float64) (FinishResult, error) {
	reply, err := that.Request(ctx, protocol.NewFinishDrawing(row, col, coverage))
	if err != nil {
		return FinishResult{}, err
	}

	switch m := reply.(type) {
	case *protocol.SquareCaptured:
		return FinishResult{
			Captured:    true,
			Coverage:    m.Coverage,
			GameOver:    m.GameOver,
			WinnerID:    m.WinnerID,
			FinalScores: m.FinalScores,
		}, nil
	case *protocol.SquareFailed:
		return FinishResult{Coverage: m.Coverage}, nil
	default:
		return FinishResult{}, fmt.Errorf("unexpected reply %s to finish_drawing", reply.MessageType())
	}
}

func (that *Client) GetGameState(ctx context.Context) (entity.GameState, error) {
	reply, err := that.Request(ctx, protocol.NewGetGameState())
	if err != nil {
		return entity.GameState{}, err
	}

	state, err := expect[*protocol.GameState](reply)
	if err != nil {
		return entity.GameState{}, err
	}

	return state.State, nil
}

func expect[T protocol.Message](reply protocol.Message) (T, error) {
	typed, ok := reply.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected reply %s", reply.MessageType())
	}

	return typed, nil
}
