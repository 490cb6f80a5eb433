package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/scribbo-backend/internal/client"
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
)

var ErrUsage = errors.New("usage")

const helpText = `commands:
  draw <row> <col> <coverage>  claim a square with the given coverage (0-100)
  board                        show the board
  state                        show players and scores
  help                         show this text
  quit                         leave the game`

type gameClient interface {
	Join(ctx context.Context, name string) (*protocol.JoinSuccess, error)
	StartDrawing(ctx context.Context, row, col int) error
	SendDrawingData(ctx context.Context, row, col int, points []protocol.Point) error
	FinishDrawing(ctx context.Context, row, col int, coverage float64) (client.FinishResult, error)
	GetGameState(ctx context.Context) (entity.GameState, error)
	OnAnyNotification(handler client.NotificationHandler)
	Done() <-chan struct{}
}

// Console is a line-oriented player front-end.
type Console struct {
	logger *slog.Logger
	client gameClient
	in     io.Reader

	outMu sync.Mutex
	out   io.Writer

	playerID int
}

func New(logger *slog.Logger, c gameClient, in io.Reader, out io.Writer) *Console {
	return &Console{
		logger: logger.With("component", "console"),
		client: c,
		in:     in,
		out:    out,
	}
}

// Run - joins as name and executes commands until quit, end of input, ctx cancellation or server loss.
func (that *Console) Run(ctx context.Context, name string) error {
	that.client.OnAnyNotification(that.printNotification)

	joined, err := that.client.Join(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	that.playerID = joined.PlayerID
	that.printf("joined as player %d (%s), %d player(s) in game\n", joined.PlayerID, joined.Color, len(joined.GameState.Players))
	that.printf("%s\n", helpText)

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(that.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-that.client.Done():
			that.printf("connection to server lost\n")
			return client.ErrClosed
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			quit, cmdErr := that.execute(ctx, line)
			if cmdErr != nil {
				that.printf("error: %v\n", cmdErr)
			}

			if quit {
				return nil
			}
		}
	}
}

// execute - runs one command line. Returns true when the user asked to leave.
func (that *Console) execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true, nil
	case "help":
		that.printf("%s\n", helpText)
		return false, nil
	case "board":
		state, err := that.client.GetGameState(ctx)
		if err != nil {
			return false, err
		}
		that.printf("%s", RenderBoard(state.Board))
		return false, nil
	case "state":
		state, err := that.client.GetGameState(ctx)
		if err != nil {
			return false, err
		}
		that.printf("%s", RenderState(state))
		return false, nil
	case "draw":
		return false, that.draw(ctx, fields[1:])
	default:
		return false, fmt.Errorf("%w: unknown command %q, try help", ErrUsage, fields[0])
	}
}

func (that *Console) draw(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: draw <row> <col> <coverage>", ErrUsage)
	}

	row, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: row must be a number", ErrUsage)
	}

	col, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: col must be a number", ErrUsage)
	}

	coverage, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("%w: coverage must be a number", ErrUsage)
	}

	if err = that.client.StartDrawing(ctx, row, col); err != nil {
		return err
	}

	if err = that.client.SendDrawingData(ctx, row, col, strokePoints(coverage, time.Now())); err != nil {
		return err
	}

	result, err := that.client.FinishDrawing(ctx, row, col, coverage)
	if err != nil {
		return err
	}

	if result.Captured {
		that.printf("captured (%d, %d) with %.1f%%\n", row, col, result.Coverage)
	} else {
		that.printf("failed to capture (%d, %d), %.1f%% is below %.0f%%\n", row, col, result.Coverage, entity.CaptureThreshold)
	}

	if result.GameOver {
		that.printf("%s", renderGameOver(result.WinnerID, result.FinalScores))
	}

	return nil
}

func (that *Console) printNotification(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.PlayerJoined:
		that.printf("* %s joined as player %d (%s), %d player(s)\n", m.Name, m.PlayerID, m.Color, m.TotalPlayers)
	case *protocol.PlayerLeft:
		that.printf("* %s (player %d) left, %d square(s) freed\n", m.Name, m.PlayerID, len(m.SquaresFreed))
	case *protocol.SquareLocked:
		that.printf("* player %d is drawing in (%d, %d)\n", m.PlayerID, m.Row, m.Col)
	case *protocol.SquareCaptured:
		that.printf("* player %d captured (%d, %d)\n", m.PlayerID, m.Row, m.Col)
		if m.GameOver {
			that.printf("%s", renderGameOver(m.WinnerID, m.FinalScores))
		}
	case *protocol.SquareFailed:
		that.printf("* player %d failed to capture (%d, %d)\n", m.PlayerID, m.Row, m.Col)
	case *protocol.DrawingUpdate:
		that.logger.Debug("drawing update", "playerID", m.PlayerID, "row", m.Row, "col", m.Col, "points", len(m.Points))
	default:
		that.logger.Debug("unhandled notification", "type", msg.MessageType())
	}
}

func (that *Console) printf(format string, args ...any) {
	that.outMu.Lock()
	defer that.outMu.Unlock()

	_, _ = fmt.Fprintf(that.out, format, args...)
}

// strokePoints - a diagonal stroke whose length follows coverage, in square-local units.
func strokePoints(coverage float64, start time.Time) []protocol.Point {
	count := int(coverage/10) + 1
	points := make([]protocol.Point, 0, count)

	for i := 0; i < count; i++ {
		pos := float64(i) / float64(count)
		points = append(points, protocol.Point{
			X:         pos,
			Y:         pos,
			Timestamp: float64(start.Add(time.Duration(i)*10*time.Millisecond).UnixMilli()) / 1000,
		})
	}

	return points
}

// RenderBoard - one line per row; owned cells show the owner id, empty cells a dot.
func RenderBoard(board entity.Board) string {
	var sb strings.Builder

	sb.WriteString("   ")
	for c := 0; c < entity.BoardSize; c++ {
		fmt.Fprintf(&sb, "%3d", c)
	}
	sb.WriteString("\n")

	for r := 0; r < entity.BoardSize; r++ {
		fmt.Fprintf(&sb, "%3d", r)
		for c := 0; c < entity.BoardSize; c++ {
			owner := board.Owner(entity.Square{Row: r, Col: c})
			if owner == entity.EmptyCell {
				sb.WriteString("  .")
				continue
			}
			fmt.Fprintf(&sb, "%3d", owner)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderState - players ordered by id with their scores, followed by the session status.
func RenderState(state entity.GameState) string {
	var sb strings.Builder

	ids := make([]int, 0, len(state.Players))
	for id := range state.Players {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		player := state.Players[id]
		fmt.Fprintf(&sb, "player %d %-12s %-7s score %d\n", player.ID, player.Name, player.Color, player.Score)
	}

	switch {
	case state.Ended && state.Winner != nil:
		fmt.Fprintf(&sb, "game over, player %d won\n", *state.Winner)
	case state.Ended:
		sb.WriteString("game over, tie\n")
	default:
		fmt.Fprintf(&sb, "in progress, %d square(s) being drawn\n", len(state.ActiveSquares))
	}

	return sb.String()
}

func renderGameOver(winnerID *int, scores map[int]int) string {
	var sb strings.Builder

	if winnerID != nil {
		fmt.Fprintf(&sb, "game over, player %d won\n", *winnerID)
	} else {
		sb.WriteString("game over, tie\n")
	}

	ids := make([]int, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		fmt.Fprintf(&sb, "  player %d: %d\n", id, scores[id])
	}

	return sb.String()
}
