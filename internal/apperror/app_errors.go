package apperror

import "errors"

var (
	ErrGameFull           = errors.New("game is full")
	ErrGameEnded          = errors.New("game has ended")
	ErrInvalidCoordinates = errors.New("invalid square coordinates")
	ErrInvalidCoverage    = errors.New("coverage must be between 0 and 100")
	ErrSquareOwned        = errors.New("square is already owned")
	ErrSquareLocked       = errors.New("square is currently being drawn on by another player")
	ErrSquareNotActive    = errors.New("square is not active for drawing")
	ErrNotAuthorized      = errors.New("you are not authorized to draw in this square")
	ErrNotJoined          = errors.New("player has not joined the game")
	ErrAlreadyJoined      = errors.New("player has already joined the game")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrMessageTooLarge    = errors.New("message too large to relay")
	ErrInternal           = errors.New("internal server error")
)

// Wire codes reported in error messages.
const (
	CodeGameFull           = "game_full"
	CodeGameEnded          = "game_ended"
	CodeInvalidCoordinates = "invalid_coordinates"
	CodeInvalidCoverage    = "invalid_coverage"
	CodeSquareOwned        = "square_owned"
	CodeSquareLocked       = "square_locked"
	CodeSquareNotActive    = "square_not_active"
	CodeNotAuthorized      = "not_authorized"
	CodeNotJoined          = "not_joined"
	CodeAlreadyJoined      = "already_joined"
	CodeUnknownType        = "unknown_type"
	CodeMalformedMessage   = "malformed_message"
	CodeMessageTooLarge    = "message_too_large"
	CodeInternal           = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrGameFull, CodeGameFull},
	{ErrGameEnded, CodeGameEnded},
	{ErrInvalidCoordinates, CodeInvalidCoordinates},
	{ErrInvalidCoverage, CodeInvalidCoverage},
	{ErrSquareOwned, CodeSquareOwned},
	{ErrSquareLocked, CodeSquareLocked},
	{ErrSquareNotActive, CodeSquareNotActive},
	{ErrNotAuthorized, CodeNotAuthorized},
	{ErrNotJoined, CodeNotJoined},
	{ErrPlayerNotFound, CodeNotJoined},
	{ErrAlreadyJoined, CodeAlreadyJoined},
	{ErrUnknownMessageType, CodeUnknownType},
	{ErrMalformedMessage, CodeMalformedMessage},
	{ErrMessageTooLarge, CodeMessageTooLarge},
}

// Code - maps an error chain to its wire code. Unknown errors map to CodeInternal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeInternal
}

// FromCode - returns the sentinel error for a wire code, or ErrInternal.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}

	return ErrInternal
}
