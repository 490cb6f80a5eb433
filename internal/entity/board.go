package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	BoardSize = 8

	MinCoverage      = 0.0
	MaxCoverage      = 100.0
	CaptureThreshold = 50.0

	EmptyCell = 0
)

// Square - coordinate of a single board cell.
type Square struct {
	Row int
	Col int
}

// IsValid - reports whether the square lies on the board.
func (that Square) IsValid() bool {
	return that.Row >= 0 && that.Row < BoardSize && that.Col >= 0 && that.Col < BoardSize
}

// Key - returns the "row,col" form used for map keys on the wire.
func (that Square) Key() string {
	return strconv.Itoa(that.Row) + "," + strconv.Itoa(that.Col)
}

func (that Square) String() string {
	return fmt.Sprintf("(%d, %d)", that.Row, that.Col)
}

// Less - orders squares row-major.
func (that Square) Less(other Square) bool {
	if that.Row != other.Row {
		return that.Row < other.Row
	}
	return that.Col < other.Col
}

// MarshalJSON encodes a square as a [row, col] pair.
func (that Square) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{that.Row, that.Col})
}

func (that *Square) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to unmarshal square: %w", err)
	}

	that.Row, that.Col = pair[0], pair[1]

	return nil
}

// Board holds the owner id of every cell; EmptyCell marks an unowned one.
type Board [BoardSize][BoardSize]int

func (that *Board) Owner(sq Square) int {
	return that[sq.Row][sq.Col]
}

func (that *Board) IsOwned(sq Square) bool {
	return that[sq.Row][sq.Col] != EmptyCell
}

func (that *Board) IsFull() bool {
	for _, row := range that {
		for _, cell := range row {
			if cell == EmptyCell {
				return false
			}
		}
	}

	return true
}

// MarshalJSON writes empty cells as null so clients can tell them apart from owners.
func (that Board) MarshalJSON() ([]byte, error) {
	rows := make([][]*int, BoardSize)
	for r := range that {
		rows[r] = make([]*int, BoardSize)
		for c := range that[r] {
			if that[r][c] != EmptyCell {
				owner := that[r][c]
				rows[r][c] = &owner
			}
		}
	}

	return json.Marshal(rows)
}

func (that *Board) UnmarshalJSON(data []byte) error {
	var rows [][]*int
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to unmarshal board: %w", err)
	}

	if len(rows) != BoardSize {
		return fmt.Errorf("board must have %d rows, got %d", BoardSize, len(rows))
	}

	var board Board
	for r, row := range rows {
		if len(row) != BoardSize {
			return fmt.Errorf("board row %d must have %d cells, got %d", r, BoardSize, len(row))
		}

		for c, cell := range row {
			if cell != nil {
				board[r][c] = *cell
			}
		}
	}

	*that = board

	return nil
}

// IsValidCoverage - coverage is a percentage in [MinCoverage, MaxCoverage].
func IsValidCoverage(coverage float64) bool {
	return coverage >= MinCoverage && coverage <= MaxCoverage
}

// IsCapture - reports whether coverage is enough to capture a square.
func IsCapture(coverage float64) bool {
	return coverage >= CaptureThreshold
}
