package protocol

import (
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
)

// Type is the closed set of message tags carried in the "type" field.
type Type string

const (
	TypeJoin          Type = "join"
	TypeStartDrawing  Type = "start_drawing"
	TypeDrawingData   Type = "drawing_data"
	TypeFinishDrawing Type = "finish_drawing"
	TypeGetGameState  Type = "get_game_state"

	TypeJoinSuccess         Type = "join_success"
	TypeStartDrawingSuccess Type = "start_drawing_success"
	TypeDrawingDataReceived Type = "drawing_data_received"
	TypeGameState           Type = "game_state"
	TypeError               Type = "error"

	TypePlayerJoined   Type = "player_joined"
	TypePlayerLeft     Type = "player_left"
	TypeSquareLocked   Type = "square_locked"
	TypeDrawingUpdate  Type = "drawing_update"
	TypeSquareCaptured Type = "square_captured"
	TypeSquareFailed   Type = "square_failed"
)

// Message is implemented by every variant.
type Message interface {
	MessageType() Type
	Token() string
	SetToken(token string)
}

// Envelope holds the fields shared by every message.
type Envelope struct {
	Type      Type   `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

func (that *Envelope) MessageType() Type {
	return that.Type
}

func (that *Envelope) Token() string {
	return that.RequestID
}

func (that *Envelope) SetToken(token string) {
	that.RequestID = token
}

// Point is a single stroke sample inside a square.
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Requests.

type Join struct {
	Envelope
	Name string `json:"name,omitempty"`
}

type StartDrawing struct {
	Envelope
	Row int `json:"row"`
	Col int `json:"col"`
}

type DrawingData struct {
	Envelope
	Row    int     `json:"row"`
	Col    int     `json:"col"`
	Points []Point `json:"data"`
}

type FinishDrawing struct {
	Envelope
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Coverage float64 `json:"coverage"`
}

type GetGameState struct {
	Envelope
}

// Responses.

type JoinSuccess struct {
	Envelope
	PlayerID  int              `json:"player_id"`
	Color     string           `json:"color"`
	GameState entity.GameState `json:"game_state"`
}

type StartDrawingSuccess struct {
	Envelope
	Row int `json:"row"`
	Col int `json:"col"`
}

type DrawingDataReceived struct {
	Envelope
}

type GameState struct {
	Envelope
	State entity.GameState `json:"state"`
}

// Error reports a failed request; Code is one of the apperror wire codes.
type Error struct {
	Envelope
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Broadcasts.

type PlayerJoined struct {
	Envelope
	PlayerID     int    `json:"player_id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	TotalPlayers int    `json:"total_players"`
}

type PlayerLeft struct {
	Envelope
	PlayerID     int             `json:"player_id"`
	Name         string          `json:"name"`
	SquaresFreed []entity.Square `json:"squares_freed"`
}

type SquareLocked struct {
	Envelope
	PlayerID int `json:"player_id"`
	Row      int `json:"row"`
	Col      int `json:"col"`
}

type DrawingUpdate struct {
	Envelope
	PlayerID int     `json:"player_id"`
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Points   []Point `json:"data"`
}

// SquareCaptured is both the finish response to the drawer and the broadcast to everyone else.
// WinnerID and FinalScores are filled only when GameOver is set.
type SquareCaptured struct {
	Envelope
	PlayerID    int         `json:"player_id"`
	Row         int         `json:"row"`
	Col         int         `json:"col"`
	Coverage    float64     `json:"coverage"`
	GameOver    bool        `json:"game_over"`
	WinnerID    *int        `json:"winner_id,omitempty"`
	FinalScores map[int]int `json:"final_scores,omitempty"`
}

type SquareFailed struct {
	Envelope
	PlayerID int     `json:"player_id"`
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Coverage float64 `json:"coverage"`
}

// factories lists every known variant; Decode rejects any other tag.
var factories = map[Type]func() Message{
	TypeJoin:                func() Message { return &Join{} },
	TypeStartDrawing:        func() Message { return &StartDrawing{} },
	TypeDrawingData:         func() Message { return &DrawingData{} },
	TypeFinishDrawing:       func() Message { return &FinishDrawing{} },
	TypeGetGameState:        func() Message { return &GetGameState{} },
	TypeJoinSuccess:         func() Message { return &JoinSuccess{} },
	TypeStartDrawingSuccess: func() Message { return &StartDrawingSuccess{} },
	TypeDrawingDataReceived: func() Message { return &DrawingDataReceived{} },
	TypeGameState:           func() Message { return &GameState{} },
	TypeError:               func() Message { return &Error{} },
	TypePlayerJoined:        func() Message { return &PlayerJoined{} },
	TypePlayerLeft:          func() Message { return &PlayerLeft{} },
	TypeSquareLocked:        func() Message { return &SquareLocked{} },
	TypeDrawingUpdate:       func() Message { return &DrawingUpdate{} },
	TypeSquareCaptured:      func() Message { return &SquareCaptured{} },
	TypeSquareFailed:        func() Message { return &SquareFailed{} },
}

// required lists the fields a request variant cannot do without. Absent or null is malformed.
var required = map[Type][]string{
	TypeStartDrawing:  {"row", "col"},
	TypeDrawingData:   {"row", "col"},
	TypeFinishDrawing: {"row", "col", "coverage"},
}
