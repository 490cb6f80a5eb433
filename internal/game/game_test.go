package game

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
	"github.com/rocketscienceinc/scribbo-backend/internal/hub"
	"github.com/rocketscienceinc/scribbo-backend/internal/metrics"
	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
)

type recordingPeer struct {
	mu       sync.Mutex
	received []protocol.Message
	closed   bool
}

func (that *recordingPeer) Enqueue(msg protocol.Message) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return false
	}

	that.received = append(that.received, msg)

	return true
}

func (that *recordingPeer) Close() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.closed = true

	return nil
}

func (that *recordingPeer) messages() []protocol.Message {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]protocol.Message(nil), that.received...)
}

func (that *recordingPeer) last() protocol.Message {
	msgs := that.messages()
	if len(msgs) == 0 {
		return nil
	}

	return msgs[len(msgs)-1]
}

func (that *recordingPeer) reset() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.received = nil
}

func newStore(t *testing.T, maxPlayers int) (*Store, *hub.Hub) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(logger, metrics.New())

	return NewStore(logger, h, maxPlayers), h
}

func join(t *testing.T, store *Store, name string) (*recordingPeer, entity.Player) {
	t.Helper()

	peer := &recordingPeer{}
	player, _, err := store.Join(peer, "join-"+name, name)
	require.NoError(t, err)

	return peer, player
}

func TestStore_Join(t *testing.T) {
	t.Run("Replies to the joiner and notifies the others", func(t *testing.T) {
		// Given: alice already joined
		store, h := newStore(t, entity.DefaultMaxPlayers)
		alice, _ := join(t, store, "alice")
		alice.reset()

		// When: bob joins
		bob := &recordingPeer{}
		player, state, err := store.Join(bob, "tok", "bob")
		require.NoError(t, err)

		// Then: bob gets join_success with the token, alice gets player_joined
		assert.Equal(t, 2, player.ID)
		assert.Len(t, state.Players, 2)
		assert.True(t, state.Started)
		assert.Equal(t, 2, h.Len())

		reply, ok := bob.last().(*protocol.JoinSuccess)
		require.True(t, ok)
		assert.Equal(t, "tok", reply.Token())
		assert.Equal(t, 2, reply.PlayerID)
		assert.Equal(t, "blue", reply.Color)

		notice, ok := alice.last().(*protocol.PlayerJoined)
		require.True(t, ok)
		assert.Empty(t, notice.Token())
		assert.Equal(t, "bob", notice.Name)
		assert.Equal(t, 2, notice.TotalPlayers)
		assert.Len(t, bob.messages(), 1)
	})

	t.Run("Rejects the ninth player", func(t *testing.T) {
		store, h := newStore(t, entity.DefaultMaxPlayers)
		for i := 0; i < entity.DefaultMaxPlayers; i++ {
			join(t, store, "")
		}

		late := &recordingPeer{}
		_, _, err := store.Join(late, "tok", "late")

		require.ErrorIs(t, err, apperror.ErrGameFull)
		assert.Empty(t, late.messages())
		assert.Equal(t, entity.DefaultMaxPlayers, h.Len())
	})
}

func TestStore_LockScenario(t *testing.T) {
	// Given: alice and bob joined
	store, _ := newStore(t, entity.DefaultMaxPlayers)
	alice, a := join(t, store, "alice")
	bob, b := join(t, store, "bob")
	sq := entity.Square{Row: 2, Col: 3}
	alice.reset()
	bob.reset()

	// When: alice starts drawing in (2,3)
	require.NoError(t, store.StartDrawing(alice, "s1", a.ID, sq))

	// Then: alice gets the success reply and bob sees the lock
	assert.IsType(t, &protocol.StartDrawingSuccess{}, alice.last())
	locked, ok := bob.last().(*protocol.SquareLocked)
	require.True(t, ok)
	assert.Equal(t, a.ID, locked.PlayerID)

	// When: bob tries the same square
	err := store.StartDrawing(bob, "s2", b.ID, sq)

	// Then: it is rejected and nothing is sent
	require.ErrorIs(t, err, apperror.ErrSquareLocked)
	assert.Len(t, bob.messages(), 1)

	// When: alice relays points and finishes with 75
	require.NoError(t, store.SubmitDrawingData(alice, "d1", a.ID, sq, []protocol.Point{{X: 1, Y: 1}}))
	capture, err := store.FinishDrawing(alice, "f1", a.ID, sq, 75)
	require.NoError(t, err)

	// Then: the cell is alice's, she scored one and bob saw the capture
	assert.True(t, capture.Captured)
	state := store.Snapshot()
	assert.Equal(t, a.ID, state.Board.Owner(sq))
	assert.Equal(t, 1, state.Players[a.ID].Score)
	assert.Empty(t, state.ActiveSquares)

	reply, ok := alice.last().(*protocol.SquareCaptured)
	require.True(t, ok)
	assert.Equal(t, "f1", reply.Token())

	types := make([]protocol.Type, 0)
	for _, msg := range bob.messages() {
		types = append(types, msg.MessageType())
	}
	assert.Equal(t, []protocol.Type{
		protocol.TypeSquareLocked,
		protocol.TypeDrawingUpdate,
		protocol.TypeSquareCaptured,
	}, types)
}

func TestStore_FinishDrawing(t *testing.T) {
	t.Run("Low coverage fails and frees the square", func(t *testing.T) {
		// Given: alice drawing in (5,5)
		store, _ := newStore(t, entity.DefaultMaxPlayers)
		alice, a := join(t, store, "alice")
		bob, _ := join(t, store, "bob")
		sq := entity.Square{Row: 5, Col: 5}
		require.NoError(t, store.StartDrawing(alice, "", a.ID, sq))

		// When: she finishes with 30
		capture, err := store.FinishDrawing(alice, "f", a.ID, sq, 30)
		require.NoError(t, err)

		// Then: the cell stays empty and bob sees square_failed
		assert.False(t, capture.Captured)
		state := store.Snapshot()
		assert.False(t, state.Board.IsOwned(sq))
		assert.Empty(t, state.ActiveSquares)
		assert.Equal(t, 0, state.Players[a.ID].Score)
		assert.IsType(t, &protocol.SquareFailed{}, bob.last())
		assert.IsType(t, &protocol.SquareFailed{}, alice.last())
	})

	t.Run("Not the holder", func(t *testing.T) {
		store, _ := newStore(t, entity.DefaultMaxPlayers)
		alice, a := join(t, store, "alice")
		bob, b := join(t, store, "bob")
		sq := entity.Square{Row: 1, Col: 1}
		require.NoError(t, store.StartDrawing(alice, "", a.ID, sq))

		_, err := store.FinishDrawing(bob, "f", b.ID, sq, 90)
		require.ErrorIs(t, err, apperror.ErrNotAuthorized)

		err = store.SubmitDrawingData(bob, "d", b.ID, sq, nil)
		require.ErrorIs(t, err, apperror.ErrNotAuthorized)

		assert.Equal(t, map[string]int{"1,1": a.ID}, store.Snapshot().ActiveSquares)
	})

	t.Run("Square never started", func(t *testing.T) {
		store, _ := newStore(t, entity.DefaultMaxPlayers)
		alice, a := join(t, store, "alice")

		_, err := store.FinishDrawing(alice, "f", a.ID, entity.Square{Row: 0, Col: 0}, 90)

		assert.ErrorIs(t, err, apperror.ErrSquareNotActive)
	})
}

func TestStore_Disconnect(t *testing.T) {
	t.Run("Frees held squares for the next player", func(t *testing.T) {
		// Given: alice holds (3,3) and owns (0,0)
		store, h := newStore(t, entity.DefaultMaxPlayers)
		alice, a := join(t, store, "alice")
		bob, b := join(t, store, "bob")
		require.NoError(t, store.StartDrawing(alice, "", a.ID, entity.Square{Row: 0, Col: 0}))
		_, err := store.FinishDrawing(alice, "", a.ID, entity.Square{Row: 0, Col: 0}, 100)
		require.NoError(t, err)
		require.NoError(t, store.StartDrawing(alice, "", a.ID, entity.Square{Row: 3, Col: 3}))

		// When: alice's connection drops
		player, freed, err := store.Disconnect(alice, a.ID)
		require.NoError(t, err)

		// Then: her lock is gone, her cell stays, bob is told and can take the square
		assert.Equal(t, "alice", player.Name)
		assert.Equal(t, []entity.Square{{Row: 3, Col: 3}}, freed)
		assert.Equal(t, 1, h.Len())

		left, ok := bob.last().(*protocol.PlayerLeft)
		require.True(t, ok)
		assert.Equal(t, a.ID, left.PlayerID)
		assert.Equal(t, freed, left.SquaresFreed)

		require.NoError(t, store.StartDrawing(bob, "", b.ID, entity.Square{Row: 3, Col: 3}))
		state := store.Snapshot()
		assert.Equal(t, a.ID, state.Board.Owner(entity.Square{Row: 0, Col: 0}))
		assert.NotContains(t, state.Players, a.ID)
	})

	t.Run("Connection that never joined", func(t *testing.T) {
		store, _ := newStore(t, entity.DefaultMaxPlayers)
		bob, _ := join(t, store, "bob")
		bob.reset()

		_, _, err := store.Disconnect(&recordingPeer{}, 0)

		require.NoError(t, err)
		assert.Empty(t, bob.messages())
	})
}

func TestStore_GameOver(t *testing.T) {
	// Given: two players, alice ends up with one square more than bob
	store, _ := newStore(t, 2)
	alice, a := join(t, store, "alice")
	bob, b := join(t, store, "bob")

	var last entity.Capture
	for i := 0; i < entity.BoardSize*entity.BoardSize; i++ {
		sq := entity.Square{Row: i / entity.BoardSize, Col: i % entity.BoardSize}
		peer, id := alice, a.ID
		if i%2 == 1 {
			peer, id = bob, b.ID
		}
		if i == entity.BoardSize*entity.BoardSize-1 {
			peer, id = alice, a.ID
		}

		require.NoError(t, store.StartDrawing(peer, "", id, sq))

		capture, err := store.FinishDrawing(peer, "", id, sq, 80)
		require.NoError(t, err)
		last = capture
	}

	// Then: the last capture ended the game with alice as the winner
	assert.True(t, last.GameOver)
	assert.Equal(t, a.ID, last.WinnerID)
	assert.Equal(t, map[int]int{a.ID: 33, b.ID: 31}, last.FinalScores)

	captured, ok := bob.last().(*protocol.SquareCaptured)
	require.True(t, ok)
	require.NotNil(t, captured.WinnerID)
	assert.Equal(t, a.ID, *captured.WinnerID)

	// And: mutations are refused while state queries still work
	err := store.StartDrawing(bob, "", b.ID, entity.Square{Row: 0, Col: 0})
	require.ErrorIs(t, err, apperror.ErrGameEnded)

	_, _, err = store.Join(&recordingPeer{}, "", "late")
	require.Error(t, err)

	state := store.State(bob, "q")
	assert.True(t, state.Ended)
	reply, ok := bob.last().(*protocol.GameState)
	require.True(t, ok)
	assert.Equal(t, "q", reply.Token())

	result := store.Result(time.Now())
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, a.ID, *result.WinnerID)
}

func TestStore_ConcurrentStartDrawing(t *testing.T) {
	// Given: eight players racing for the same square
	store, _ := newStore(t, entity.DefaultMaxPlayers)
	type contender struct {
		peer *recordingPeer
		id   int
	}

	contenders := make([]contender, 0, entity.DefaultMaxPlayers)
	for i := 0; i < entity.DefaultMaxPlayers; i++ {
		peer, player := join(t, store, "")
		contenders = append(contenders, contender{peer: peer, id: player.ID})
	}

	sq := entity.Square{Row: 4, Col: 4}

	// When: all of them start drawing at once
	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, c := range contenders {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.StartDrawing(c.peer, "", c.id, sq); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	// Then: exactly one holds the lock
	assert.Equal(t, int32(1), wins.Load())
	assert.Len(t, store.Snapshot().ActiveSquares, 1)
}

func TestStore_BroadcastOrder(t *testing.T) {
	// Given: an observer and four drawers working concurrently
	store, _ := newStore(t, entity.DefaultMaxPlayers)
	observer, _ := join(t, store, "observer")
	observer.reset()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		i := i
		peer, player := join(t, store, "")
		wg.Add(1)
		go func() {
			defer wg.Done()
			for col := 0; col < entity.BoardSize; col++ {
				sq := entity.Square{Row: i, Col: col}
				if err := store.StartDrawing(peer, "", player.ID, sq); err != nil {
					continue
				}
				_, _ = store.FinishDrawing(peer, "", player.ID, sq, 90)
			}
		}()
	}
	wg.Wait()

	// Then: for every square the observer saw the lock before the capture
	lockedAt := make(map[entity.Square]int)
	for i, msg := range observer.messages() {
		switch m := msg.(type) {
		case *protocol.SquareLocked:
			lockedAt[entity.Square{Row: m.Row, Col: m.Col}] = i
		case *protocol.SquareCaptured:
			at, ok := lockedAt[entity.Square{Row: m.Row, Col: m.Col}]
			require.True(t, ok)
			assert.Less(t, at, i)
		}
	}

	assert.Len(t, lockedAt, 4*entity.BoardSize)
}
