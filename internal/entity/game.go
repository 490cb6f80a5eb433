package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
)

const DefaultMaxPlayers = 8

// Game is the whole session: board, squares being drawn, players and lifecycle flags.
// It is not safe for concurrent use.
type Game struct {
	Board   Board
	Active  map[Square]int
	Players map[int]*Player
	Started bool
	Ended   bool
	Winner  int

	MaxPlayers int
	nextID     int
}

// Capture is the outcome of finishing a drawing.
type Capture struct {
	Square      Square
	PlayerID    int
	Coverage    float64
	Captured    bool
	GameOver    bool
	WinnerID    int
	FinalScores map[int]int
}

// GameState is a detached copy of a Game suitable for the wire.
type GameState struct {
	Board         Board          `json:"board"`
	ActiveSquares map[string]int `json:"active_squares"`
	Players       map[int]Player `json:"players"`
	Started       bool           `json:"game_started"`
	Ended         bool           `json:"game_ended"`
	Winner        *int           `json:"winner"`
}

func NewGame(maxPlayers int) *Game {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}

	return &Game{
		Active:     make(map[Square]int),
		Players:    make(map[int]*Player),
		MaxPlayers: maxPlayers,
		nextID:     1,
	}
}

// AddPlayer - registers a new player and starts the game on the first join.
func (that *Game) AddPlayer(name string) (*Player, error) {
	if len(that.Players) >= that.MaxPlayers {
		return nil, fmt.Errorf("%w: %d players", apperror.ErrGameFull, len(that.Players))
	}

	if that.Ended {
		return nil, apperror.ErrGameEnded
	}

	id := that.nextID
	that.nextID++

	if name == "" {
		name = DefaultName(id)
	}

	player := &Player{
		ID:    id,
		Name:  name,
		Color: that.pickColor(),
	}

	that.Players[id] = player
	that.Started = true

	return player, nil
}

// pickColor starts at the player count modulo the palette and skips colors in use.
func (that *Game) pickColor() string {
	inUse := make(map[string]bool, len(that.Players))
	for _, player := range that.Players {
		inUse[player.Color] = true
	}

	start := len(that.Players) % len(Palette)
	for i := range Palette {
		color := Palette[(start+i)%len(Palette)]
		if !inUse[color] {
			return color
		}
	}

	return Palette[start]
}

// StartDrawing - locks sq for playerID. Re-locking a square the player already holds is a no-op.
func (that *Game) StartDrawing(playerID int, sq Square) error {
	if that.Ended {
		return apperror.ErrGameEnded
	}

	if _, ok := that.Players[playerID]; !ok {
		return fmt.Errorf("%w: %d", apperror.ErrPlayerNotFound, playerID)
	}

	if !sq.IsValid() {
		return fmt.Errorf("%w: %s", apperror.ErrInvalidCoordinates, sq)
	}

	if that.Board.IsOwned(sq) {
		return fmt.Errorf("%w: %s", apperror.ErrSquareOwned, sq)
	}

	if holder, ok := that.Active[sq]; ok && holder != playerID {
		return fmt.Errorf("%w: %s", apperror.ErrSquareLocked, sq)
	}

	that.Active[sq] = playerID

	return nil
}

// ConfirmDrawing - checks that playerID currently holds sq.
func (that *Game) ConfirmDrawing(playerID int, sq Square) error {
	holder, ok := that.Active[sq]
	if !ok {
		return fmt.Errorf("%w: %s", apperror.ErrSquareNotActive, sq)
	}

	if holder != playerID {
		return fmt.Errorf("%w: %s", apperror.ErrNotAuthorized, sq)
	}

	return nil
}

// FinishDrawing - releases the lock on sq and captures it when coverage reaches the threshold.
func (that *Game) FinishDrawing(playerID int, sq Square, coverage float64) (Capture, error) {
	if err := that.ConfirmDrawing(playerID, sq); err != nil {
		return Capture{}, err
	}

	delete(that.Active, sq)

	capture := Capture{
		Square:   sq,
		PlayerID: playerID,
		Coverage: coverage,
	}

	if !IsCapture(coverage) {
		return capture, nil
	}

	that.Board[sq.Row][sq.Col] = playerID
	if player, ok := that.Players[playerID]; ok {
		player.Score++
	}
	capture.Captured = true

	that.UpdateGameState()

	if that.Ended {
		capture.GameOver = true
		capture.WinnerID = that.Winner
		capture.FinalScores = that.Scores()
	}

	return capture, nil
}

// UpdateGameState - ends the game once no empty cell remains. Ended is never cleared.
func (that *Game) UpdateGameState() {
	if that.Ended || !that.Board.IsFull() {
		return
	}

	that.Ended = true
	that.Winner = that.DetermineWinner()
}

// DetermineWinner - the single player holding the highest score, or 0 on a tie.
func (that *Game) DetermineWinner() int {
	winner, best, tied := 0, -1, false

	for id, player := range that.Players {
		switch {
		case player.Score > best:
			winner, best, tied = id, player.Score, false
		case player.Score == best:
			tied = true
		}
	}

	if tied {
		return 0
	}

	return winner
}

// RemovePlayer - drops the player and frees every square they were drawing in.
// Captured cells keep their owner.
func (that *Game) RemovePlayer(playerID int) (Player, []Square, error) {
	player, ok := that.Players[playerID]
	if !ok {
		return Player{}, nil, fmt.Errorf("%w: %d", apperror.ErrPlayerNotFound, playerID)
	}

	var freed []Square
	for sq, holder := range that.Active {
		if holder == playerID {
			freed = append(freed, sq)
			delete(that.Active, sq)
		}
	}

	sort.Slice(freed, func(i, j int) bool { return freed[i].Less(freed[j]) })

	delete(that.Players, playerID)

	return *player, freed, nil
}

func (that *Game) Scores() map[int]int {
	scores := make(map[int]int, len(that.Players))
	for id, player := range that.Players {
		scores[id] = player.Score
	}

	return scores
}

// Snapshot - deep copy of the current state.
func (that *Game) Snapshot() GameState {
	state := GameState{
		Board:         that.Board,
		ActiveSquares: make(map[string]int, len(that.Active)),
		Players:       make(map[int]Player, len(that.Players)),
		Started:       that.Started,
		Ended:         that.Ended,
	}

	for sq, holder := range that.Active {
		state.ActiveSquares[sq.Key()] = holder
	}

	for id, player := range that.Players {
		state.Players[id] = *player
	}

	if that.Winner != 0 {
		winner := that.Winner
		state.Winner = &winner
	}

	return state
}

// Result is the archived outcome of a finished game.
type Result struct {
	ID          string      `json:"id"`
	WinnerID    *int        `json:"winner_id"`
	FinalScores map[int]int `json:"final_scores"`
	Players     []Player    `json:"players"`
	FinishedAt  time.Time   `json:"finished_at"`
}

// Result - builds the archive record for a finished game; ID is assigned by the archive.
func (that *Game) Result(finishedAt time.Time) Result {
	result := Result{
		FinalScores: that.Scores(),
		Players:     make([]Player, 0, len(that.Players)),
		FinishedAt:  finishedAt,
	}

	for _, player := range that.Players {
		result.Players = append(result.Players, *player)
	}

	sort.Slice(result.Players, func(i, j int) bool { return result.Players[i].ID < result.Players[j].ID })

	if that.Winner != 0 {
		winner := that.Winner
		result.WinnerID = &winner
	}

	return result
}
