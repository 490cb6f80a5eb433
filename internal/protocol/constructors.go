package protocol

import (
	"errors"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
)

func envelope(t Type) Envelope {
	return Envelope{Type: t}
}

func NewJoin(name string) *Join {
	return &Join{Envelope: envelope(TypeJoin), Name: name}
}

func NewStartDrawing(row, col int) *StartDrawing {
	return &StartDrawing{Envelope: envelope(TypeStartDrawing), Row: row, Col: col}
}

func NewDrawingData(row, col int, points []Point) *DrawingData {
	return &DrawingData{Envelope: envelope(TypeDrawingData), Row: row, Col: col, Points: points}
}

func NewFinishDrawing(row, col int, coverage float64) *FinishDrawing {
	return &FinishDrawing{Envelope: envelope(TypeFinishDrawing), Row: row, Col: col, Coverage: coverage}
}

func NewGetGameState() *GetGameState {
	return &GetGameState{Envelope: envelope(TypeGetGameState)}
}

func NewJoinSuccess(player entity.Player, state entity.GameState) *JoinSuccess {
	return &JoinSuccess{
		Envelope:  envelope(TypeJoinSuccess),
		PlayerID:  player.ID,
		Color:     player.Color,
		GameState: state,
	}
}

func NewStartDrawingSuccess(sq entity.Square) *StartDrawingSuccess {
	return &StartDrawingSuccess{Envelope: envelope(TypeStartDrawingSuccess), Row: sq.Row, Col: sq.Col}
}

func NewDrawingDataReceived() *DrawingDataReceived {
	return &DrawingDataReceived{Envelope: envelope(TypeDrawingDataReceived)}
}

func NewGameState(state entity.GameState) *GameState {
	return &GameState{Envelope: envelope(TypeGameState), State: state}
}

// NewError - builds an error message carrying the wire code of err.
func NewError(err error) *Error {
	return &Error{
		Envelope: envelope(TypeError),
		Code:     apperror.Code(err),
		Message:  rootMessage(err),
	}
}

// rootMessage hides wrapping details of internal failures from clients.
func rootMessage(err error) string {
	if apperror.Code(err) == apperror.CodeInternal {
		return apperror.ErrInternal.Error()
	}

	return err.Error()
}

// Err - the sentinel error matching the reported code.
func (that *Error) Err() error {
	return errors.Join(apperror.FromCode(that.Code), errors.New(that.Message))
}

func NewPlayerJoined(player entity.Player, totalPlayers int) *PlayerJoined {
	return &PlayerJoined{
		Envelope:     envelope(TypePlayerJoined),
		PlayerID:     player.ID,
		Name:         player.Name,
		Color:        player.Color,
		TotalPlayers: totalPlayers,
	}
}

func NewPlayerLeft(player entity.Player, freed []entity.Square) *PlayerLeft {
	if freed == nil {
		freed = []entity.Square{}
	}

	return &PlayerLeft{
		Envelope:     envelope(TypePlayerLeft),
		PlayerID:     player.ID,
		Name:         player.Name,
		SquaresFreed: freed,
	}
}

func NewSquareLocked(playerID int, sq entity.Square) *SquareLocked {
	return &SquareLocked{Envelope: envelope(TypeSquareLocked), PlayerID: playerID, Row: sq.Row, Col: sq.Col}
}

func NewDrawingUpdate(playerID int, sq entity.Square, points []Point) *DrawingUpdate {
	return &DrawingUpdate{
		Envelope: envelope(TypeDrawingUpdate),
		PlayerID: playerID,
		Row:      sq.Row,
		Col:      sq.Col,
		Points:   points,
	}
}

// NewCaptureResult - square_captured or square_failed depending on the outcome.
func NewCaptureResult(capture entity.Capture) Message {
	if !capture.Captured {
		return &SquareFailed{
			Envelope: envelope(TypeSquareFailed),
			PlayerID: capture.PlayerID,
			Row:      capture.Square.Row,
			Col:      capture.Square.Col,
			Coverage: capture.Coverage,
		}
	}

	msg := &SquareCaptured{
		Envelope: envelope(TypeSquareCaptured),
		PlayerID: capture.PlayerID,
		Row:      capture.Square.Row,
		Col:      capture.Square.Col,
		Coverage: capture.Coverage,
		GameOver: capture.GameOver,
	}

	if capture.GameOver {
		msg.FinalScores = capture.FinalScores
		if capture.WinnerID != 0 {
			winner := capture.WinnerID
			msg.WinnerID = &winner
		}
	}

	return msg
}
