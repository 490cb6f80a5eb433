package protocol

import (
	"fmt"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
)

func ValidateCoordinates(row, col int) error {
	sq := entity.Square{Row: row, Col: col}
	if !sq.IsValid() {
		return fmt.Errorf("%w: %s", apperror.ErrInvalidCoordinates, sq)
	}

	return nil
}

func ValidateCoverage(coverage float64) error {
	if !entity.IsValidCoverage(coverage) {
		return fmt.Errorf("%w: %v", apperror.ErrInvalidCoverage, coverage)
	}

	return nil
}

// IsCapture - reports whether coverage is enough to capture a square.
func IsCapture(coverage float64) bool {
	return entity.IsCapture(coverage)
}

// Validate - checks the field ranges of request variants. Other variants always pass.
func Validate(msg Message) error {
	switch m := msg.(type) {
	case *StartDrawing:
		return ValidateCoordinates(m.Row, m.Col)
	case *DrawingData:
		return ValidateCoordinates(m.Row, m.Col)
	case *FinishDrawing:
		if err := ValidateCoordinates(m.Row, m.Col); err != nil {
			return err
		}
		return ValidateCoverage(m.Coverage)
	}

	return nil
}
