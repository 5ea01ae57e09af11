package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/handshape-backend/internal/engine"
	"github.com/DoyleJ11/handshape-backend/internal/hub"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
	"github.com/DoyleJ11/handshape-backend/internal/scoring"
	"github.com/DoyleJ11/handshape-backend/internal/types"
	wire "github.com/DoyleJ11/handshape-backend/pkg/types"
)

const within = 500 * time.Millisecond

// shapeScorer gives fixed points per gesture: グー 70, チョキ 50, パー 90.
func shapeScorer() *scoring.Scorer {
	points := map[prompt.HandShape]int{prompt.HandGuu: 70, prompt.HandChoki: 50, prompt.HandPaa: 90}
	return scoring.NewScorer(scoring.EvaluatorFunc(func(_ context.Context, req scoring.Request) (engine.Evaluation, error) {
		return engine.Evaluation{Points: points[req.HandShape], Feedback: "ok"}, nil
	}), scoring.Options{Concurrency: 4}, nil)
}

// gatedScorer holds every ballot until the test releases it.
type gatedScorer struct {
	started chan engine.Ballot
	release chan struct{}
	inner   Scorer
}

func newGatedScorer() *gatedScorer {
	return &gatedScorer{started: make(chan engine.Ballot, 4), release: make(chan struct{}), inner: shapeScorer()}
}

func (g *gatedScorer) Score(ctx context.Context, b engine.Ballot) map[string]engine.Evaluation {
	g.started <- b
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return g.inner.Score(ctx, b)
}

type recorderFunc func(ctx context.Context, g engine.GameSummary) error

func (f recorderFunc) RecordGame(ctx context.Context, g engine.GameSummary) error { return f(ctx, g) }

func newTestLobby(t *testing.T, opts Options) *Lobby {
	t.Helper()
	if opts.Rules.TotalRounds == 0 {
		opts.Rules = engine.Rules{TotalRounds: 2, MaxPlayers: 4}
	}
	if opts.Scorer == nil {
		opts.Scorer = shapeScorer()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(1, 2))
	}
	n := 0
	opts.NewID = func() string { n++; return fmt.Sprintf("id-%d", n) }

	ctx, cancel := context.WithCancel(context.Background())
	l := NewLobby(ctx, hub.New(nil), opts)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func connect(t *testing.T, l *Lobby, clientID string, buf int) chan wire.Message {
	t.Helper()
	out := make(chan wire.Message, buf)
	reply := make(chan error, 1)
	l.Inbox() <- Connect{ClientID: clientID, Outbox: out, Reply: reply}
	require.NoError(t, <-reply)
	return out
}

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan wire.Message, within time.Duration) wire.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return nil // unreachable
	}
}

func recvNoMsg(t *testing.T, ch <-chan wire.Message, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further messages possible
			return
		}
		t.Fatalf("expected no message within %v, but got: %+v", within, m)
	case <-time.After(within):
		// good: no message
	}
}

func expect[T wire.Message](t *testing.T, ch <-chan wire.Message) T {
	t.Helper()
	m := recvMsg(t, ch, within)
	got, ok := m.(T)
	require.Truef(t, ok, "want %T, got %T %+v", *new(T), m, m)
	return got
}

func expectUpdate(t *testing.T, ch <-chan wire.Message, kind string) wire.SessionView {
	t.Helper()
	u := expect[wire.SessionUpdate](t, ch)
	require.Equal(t, kind, u.Type)
	return u.Session
}

func expectError(t *testing.T, ch <-chan wire.Message, code string) {
	t.Helper()
	e := expect[wire.Error](t, ch)
	assert.Equal(t, wire.KindError, e.Type)
	assert.Equal(t, code, e.Code)
}

func state(t *testing.T, l *Lobby) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	v, err := l.State(ctx)
	require.NoError(t, err)
	return v
}

func send(l *Lobby, clientID string, in types.Inbound) {
	l.Inbox() <- FromClient{ClientID: clientID, In: in}
}

// joinPair joins H on c1 then P on c2 and drains the join traffic. Both
// connections exist before either joins, so c2 also hears about H.
func joinPair(t *testing.T, l *Lobby) (c1, c2 chan wire.Message, hostID, playerID string) {
	t.Helper()
	c1 = connect(t, l, "c1", 16)
	c2 = connect(t, l, "c2", 16)

	send(l, "c1", types.JoinGame{PlayerName: "H"})
	hostID = expect[wire.PlayerJoined](t, c1).PlayerID
	require.Equal(t, hostID, expect[wire.NewPlayerJoined](t, c2).NewPlayer.ID)

	send(l, "c2", types.JoinGame{PlayerName: "P"})
	playerID = expect[wire.PlayerJoined](t, c2).PlayerID
	expect[wire.NewPlayerJoined](t, c1)
	return c1, c2, hostID, playerID
}

func startGame(t *testing.T, l *Lobby, chans ...chan wire.Message) {
	t.Helper()
	send(l, "c1", types.StartGame{})
	for _, ch := range chans {
		expectUpdate(t, ch, wire.KindGameStart)
	}
}

func TestLobby_HostJoinsAloneAndStarts(t *testing.T) {
	l := newTestLobby(t, Options{})
	c1 := connect(t, l, "c1", 8)

	send(l, "c1", types.JoinGame{PlayerName: "  H  "})
	joined := expect[wire.PlayerJoined](t, c1)

	assert.Equal(t, wire.KindPlayerJoined, joined.Type)
	assert.True(t, joined.IsHost)
	assert.Equal(t, "H", joined.Player.Name)
	assert.Equal(t, joined.PlayerID, joined.Session.HostID)
	assert.Equal(t, "waitingForPlayers", joined.Session.State)
	assert.Nil(t, joined.Session.CurrentPrompt)
	require.NotNil(t, joined.Session.You)
	assert.True(t, joined.Session.You.IsHost)

	send(l, "c1", types.StartGame{})
	s := expectUpdate(t, c1, wire.KindGameStart)

	assert.Equal(t, "playing", s.State)
	assert.Equal(t, 1, s.CurrentRound)
	require.NotNil(t, s.CurrentPrompt)
	assert.NotEmpty(t, s.CurrentPrompt.ID)
}

func TestLobby_JoinNotifiesOthers(t *testing.T) {
	l := newTestLobby(t, Options{})
	c1 := connect(t, l, "c1", 8)
	c2 := connect(t, l, "c2", 8)

	send(l, "c1", types.JoinGame{PlayerName: "H"})
	host := expect[wire.PlayerJoined](t, c1)

	// c2 is connected but has not joined: it gets the public view
	early := expect[wire.NewPlayerJoined](t, c2)
	assert.Equal(t, "H", early.NewPlayer.Name)
	assert.Nil(t, early.Session.You)
	require.Len(t, early.Session.Players, 1)

	send(l, "c2", types.JoinGame{PlayerName: "P"})
	joined := expect[wire.PlayerJoined](t, c2)
	assert.False(t, joined.IsHost)
	assert.Equal(t, joined.PlayerID, joined.Session.You.PlayerID)

	other := expect[wire.NewPlayerJoined](t, c1)
	assert.Equal(t, wire.KindNewPlayerJoined, other.Type)
	assert.Equal(t, "P", other.NewPlayer.Name)
	require.Len(t, other.Session.Players, 2)
	assert.Equal(t, host.PlayerID, other.Session.Players[0].ID, "join order")
	assert.Equal(t, host.PlayerID, other.Session.You.PlayerID, "each recipient gets its own view")

	recvNoMsg(t, c2, 50*time.Millisecond)
}

func TestLobby_TwoPlayerRoundRanksAndKeepsGesturesPrivate(t *testing.T) {
	l := newTestLobby(t, Options{})
	c1, c2, hostID, playerID := joinPair(t, l)
	startGame(t, l, c1, c2)

	send(l, "c1", types.SelectHandShape{PlayerID: hostID, HandShape: prompt.HandGuu})
	own := expectUpdate(t, c1, wire.KindGameUpdate)
	peer := expectUpdate(t, c2, wire.KindGameUpdate)

	assert.Equal(t, "グー", own.You.HandShape)
	assert.Empty(t, peer.You.HandShape)
	assert.True(t, peer.Players[0].HasSelected)
	assert.False(t, peer.Players[1].HasSelected)

	peer.CurrentPrompt = nil // prompts name hand shapes themselves
	raw, err := json.Marshal(peer)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "グー", "open-round gesture leaked to another player")

	send(l, "c2", types.SelectHandShape{PlayerID: playerID, HandShape: prompt.HandPaa})
	expectUpdate(t, c1, wire.KindGameUpdate)
	expectUpdate(t, c2, wire.KindGameUpdate)

	end := expectUpdate(t, c1, wire.KindRoundEnd)
	expectUpdate(t, c2, wire.KindRoundEnd)

	assert.Equal(t, "roundEnd", end.State)
	require.Len(t, end.RoundResults, 1)
	r := end.RoundResults[0]
	require.Len(t, r.PlayerResults, 2)
	assert.Equal(t, playerID, r.PlayerResults[0].PlayerID)
	assert.Equal(t, 90, r.PlayerResults[0].Score)
	assert.Equal(t, 1, r.PlayerResults[0].Rank)
	assert.Equal(t, "パー", r.PlayerResults[0].HandShape)
	assert.Equal(t, hostID, r.PlayerResults[1].PlayerID)
	assert.Equal(t, 70, r.PlayerResults[1].Score)
	assert.Equal(t, 2, r.PlayerResults[1].Rank)

	require.Len(t, r.Leaderboard, 2)
	assert.Equal(t, 90, r.Leaderboard[0].TotalScore)
	assert.Equal(t, 70, r.Leaderboard[1].TotalScore)
	assert.Equal(t, map[string]int{playerID: 90, hostID: 70}, end.PlayerScores)
}

func TestLobby_SubmissionsWhileSealingAreRejected(t *testing.T) {
	gate := newGatedScorer()
	l := newTestLobby(t, Options{Scorer: gate})
	c1, c2, _, _ := joinPair(t, l)
	startGame(t, l, c1, c2)

	send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
	send(l, "c2", types.SelectHandShape{HandShape: prompt.HandPaa})
	<-gate.started

	send(l, "c2", types.SelectHandShape{HandShape: prompt.HandChoki})
	v := state(t, l)
	assert.True(t, v.Sealing)
	assert.Empty(t, v.History)

	close(gate.release)

	for _, ch := range []chan wire.Message{c1, c2} {
		expectUpdate(t, ch, wire.KindGameUpdate)
		expectUpdate(t, ch, wire.KindGameUpdate)
	}
	expectError(t, c2, engine.CodeInvalidPhase)
	end := expectUpdate(t, c2, wire.KindRoundEnd)
	assert.Equal(t, "パー", end.RoundResults[0].PlayerResults[0].HandShape, "resubmission during sealing was discarded")

	// after the seal the round stays closed
	send(l, "c2", types.SelectHandShape{HandShape: prompt.HandGuu})
	expectError(t, c2, engine.CodeInvalidPhase)

	v = state(t, l)
	assert.Len(t, v.History, 1)
	assert.Equal(t, engine.PhaseRoundEnd, v.Phase)
	assert.False(t, v.Sealing)
	select {
	case <-gate.started:
		t.Fatal("round was scored twice")
	default:
	}
}

func TestLobby_AdvanceToGameEnd(t *testing.T) {
	recorded := make(chan engine.GameSummary, 1)
	l := newTestLobby(t, Options{Recorder: recorderFunc(func(_ context.Context, g engine.GameSummary) error {
		recorded <- g
		return nil
	})})
	c1, c2, hostID, playerID := joinPair(t, l)
	startGame(t, l, c1, c2)

	playRound := func() wire.SessionView {
		send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
		send(l, "c2", types.SelectHandShape{HandShape: prompt.HandChoki})
		var end wire.SessionView
		for _, ch := range []chan wire.Message{c1, c2} {
			expectUpdate(t, ch, wire.KindGameUpdate)
			expectUpdate(t, ch, wire.KindGameUpdate)
			end = expectUpdate(t, ch, wire.KindRoundEnd)
		}
		return end
	}

	first := playRound()

	send(l, "c2", types.NextRound{})
	expectError(t, c2, engine.CodeNotAuthorized)

	send(l, "c1", types.NextRound{})
	next := expectUpdate(t, c1, wire.KindGameUpdate)
	expectUpdate(t, c2, wire.KindGameUpdate)
	assert.Equal(t, "playing", next.State)
	assert.Equal(t, 2, next.CurrentRound)
	assert.False(t, next.Players[0].HasSelected, "submissions cleared for the new round")
	assert.NotEqual(t, first.CurrentPrompt.ID, next.CurrentPrompt.ID)

	playRound()

	send(l, "c1", types.NextRound{})
	final := expectUpdate(t, c1, wire.KindGameEnd)
	expectUpdate(t, c2, wire.KindGameEnd)

	assert.Equal(t, "gameEnd", final.State)
	assert.Nil(t, final.CurrentPrompt)
	assert.Len(t, final.RoundResults, 2)
	require.Len(t, final.FinalLeaderboard, 2)
	assert.Equal(t, hostID, final.FinalLeaderboard[0].PlayerID)
	assert.Equal(t, 140, final.FinalLeaderboard[0].TotalScore)
	assert.Equal(t, playerID, final.FinalLeaderboard[1].PlayerID)

	select {
	case g := <-recorded:
		assert.Len(t, g.Rounds, 2)
		assert.Equal(t, final.ID, g.SessionID)
	case <-time.After(within):
		t.Fatal("finished game was not archived")
	}

	send(l, "c1", types.NextRound{})
	expectError(t, c1, engine.CodeInvalidPhase)
}

func TestLobby_HostDisconnectReassigns(t *testing.T) {
	l := newTestLobby(t, Options{})
	_, c2, hostID, playerID := joinPair(t, l)

	l.Inbox() <- Disconnect{ClientID: "c1"}

	left := expect[wire.PlayerLeft](t, c2)
	assert.Equal(t, hostID, left.PlayerID)
	assert.Equal(t, playerID, left.Session.HostID)
	require.Len(t, left.Session.Players, 1)
	assert.True(t, left.Session.Players[0].IsHost)
	assert.True(t, left.Session.You.IsHost)

	v := state(t, l)
	assert.Equal(t, 1, v.NumClients)
	assert.Equal(t, playerID, v.HostID)
}

func TestLobby_LastLeaveDestroysSession(t *testing.T) {
	l := newTestLobby(t, Options{})
	c1 := connect(t, l, "c1", 8)
	send(l, "c1", types.JoinGame{PlayerName: "H"})
	first := expect[wire.PlayerJoined](t, c1)
	send(l, "c1", types.StartGame{})
	expectUpdate(t, c1, wire.KindGameStart)

	l.Inbox() <- Disconnect{ClientID: "c1"}
	assert.False(t, state(t, l).Present)

	c2 := connect(t, l, "c2", 8)
	send(l, "c2", types.JoinGame{PlayerName: "P"})
	fresh := expect[wire.PlayerJoined](t, c2)

	assert.NotEqual(t, first.Session.ID, fresh.Session.ID)
	assert.True(t, fresh.IsHost)
	assert.Equal(t, "waitingForPlayers", fresh.Session.State)
	assert.Equal(t, 1, fresh.Session.CurrentRound)
	assert.Empty(t, fresh.Session.RoundResults)
}

func TestLobby_RejectsBadInputWithoutStateChange(t *testing.T) {
	l := newTestLobby(t, Options{Rules: engine.Rules{TotalRounds: 1, MaxPlayers: 2}})
	c1, c2, hostID, _ := joinPair(t, l)
	c3 := connect(t, l, "c3", 8)
	before := state(t, l)

	_, err := types.Decode([]byte(`{"type":"dance"}`))
	l.Reject("c3", err)
	expectError(t, c3, engine.CodeMalformed)

	send(l, "c3", types.StartGame{})
	expectError(t, c3, engine.CodeUnknownPlayer)

	send(l, "c3", types.JoinGame{PlayerName: "X"})
	expectError(t, c3, engine.CodeCapacityExceeded)

	send(l, "c2", types.StartGame{})
	expectError(t, c2, engine.CodeNotAuthorized)

	send(l, "c1", types.JoinGame{PlayerName: "again"})
	expectError(t, c1, engine.CodeInvalidInput)

	send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
	expectError(t, c1, engine.CodeInvalidPhase)

	startGame(t, l, c1, c2, c3)

	send(l, "c2", types.SelectHandShape{PlayerID: hostID, HandShape: prompt.HandGuu})
	expectError(t, c2, engine.CodeNotAuthorized)

	send(l, "c2", types.SelectHandShape{HandShape: "キック"})
	expectError(t, c2, engine.CodeInvalidInput)

	send(l, "c2", types.SelectHandShape{SessionID: "old-session", HandShape: prompt.HandGuu})
	expectError(t, c2, engine.CodeInvalidPhase)

	after := state(t, l)
	assert.Equal(t, before.SessionID, after.SessionID)
	assert.Len(t, after.Players, 2)
	for _, p := range after.Players {
		assert.Nil(t, p.Submission)
	}
	recvNoMsg(t, c1, 50*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	l := newTestLobby(t, Options{})
	slow := connect(t, l, "slow", 1)
	c2 := connect(t, l, "c2", 8)

	send(l, "slow", types.JoinGame{PlayerName: "S"}) // fills the outbox
	expect[wire.NewPlayerJoined](t, c2)
	send(l, "c2", types.JoinGame{PlayerName: "P"})
	expect[wire.PlayerJoined](t, c2)

	v := state(t, l)
	assert.Equal(t, 2, v.NumClients, "binding stays until the transport disconnects")
	assert.Len(t, v.Players, 2)

	<-slow
	_, open := <-slow
	assert.False(t, open, "slow client's outbox is closed")

	l.Inbox() <- Disconnect{ClientID: "slow"}
	left := expect[wire.PlayerLeft](t, c2)
	assert.True(t, left.Session.You.IsHost)
}

func TestLobby_LeaveOfLastOutstandingPlayerSeals(t *testing.T) {
	l := newTestLobby(t, Options{})
	c1, c2, hostID, _ := joinPair(t, l)
	startGame(t, l, c1, c2)

	send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
	expectUpdate(t, c1, wire.KindGameUpdate)

	l.Inbox() <- Disconnect{ClientID: "c2"}
	expect[wire.PlayerLeft](t, c1)
	end := expectUpdate(t, c1, wire.KindRoundEnd)

	require.Len(t, end.RoundResults[0].PlayerResults, 1)
	assert.Equal(t, hostID, end.RoundResults[0].PlayerResults[0].PlayerID)
}

func TestLobby_LeaveWhileSealingDropsPlayer(t *testing.T) {
	gate := newGatedScorer()
	l := newTestLobby(t, Options{Scorer: gate})
	c1, c2, hostID, _ := joinPair(t, l)
	startGame(t, l, c1, c2)

	send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
	send(l, "c2", types.SelectHandShape{HandShape: prompt.HandPaa})
	b := <-gate.started
	assert.Len(t, b.Entries, 2)

	l.Inbox() <- Disconnect{ClientID: "c2"}
	close(gate.release)

	expectUpdate(t, c1, wire.KindGameUpdate)
	expectUpdate(t, c1, wire.KindGameUpdate)
	expect[wire.PlayerLeft](t, c1)
	end := expectUpdate(t, c1, wire.KindRoundEnd)

	require.Len(t, end.RoundResults[0].PlayerResults, 1)
	assert.Equal(t, hostID, end.RoundResults[0].PlayerResults[0].PlayerID)
	assert.Equal(t, 1, end.RoundResults[0].Leaderboard[0].Rank)
}

func TestLobby_BallotAbandonedWhenOnlyLateJoinersRemain(t *testing.T) {
	gate := newGatedScorer()
	l := newTestLobby(t, Options{Scorer: gate})
	c1, c2, _, _ := joinPair(t, l)
	startGame(t, l, c1, c2)

	send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
	send(l, "c2", types.SelectHandShape{HandShape: prompt.HandPaa})
	<-gate.started

	c3 := connect(t, l, "c3", 16)
	send(l, "c3", types.JoinGame{PlayerName: "Q"})
	lateID := expect[wire.PlayerJoined](t, c3).PlayerID
	l.Inbox() <- Disconnect{ClientID: "c1"}
	l.Inbox() <- Disconnect{ClientID: "c2"}
	expect[wire.PlayerLeft](t, c3)
	expect[wire.PlayerLeft](t, c3)

	close(gate.release)
	open := expectUpdate(t, c3, wire.KindGameUpdate)
	assert.Equal(t, "playing", open.State)
	assert.Empty(t, open.RoundResults)

	v := state(t, l)
	assert.Equal(t, engine.PhasePlaying, v.Phase)
	assert.False(t, v.Sealing)
	assert.Empty(t, v.History)
	require.Len(t, v.Players, 1)

	send(l, "c3", types.SelectHandShape{HandShape: prompt.HandChoki})
	expectUpdate(t, c3, wire.KindGameUpdate)
	<-gate.started
	end := expectUpdate(t, c3, wire.KindRoundEnd)
	require.Len(t, end.RoundResults, 1)
	require.Len(t, end.RoundResults[0].PlayerResults, 1)
	assert.Equal(t, lateID, end.RoundResults[0].PlayerResults[0].PlayerID)
	assert.Equal(t, 50, end.RoundResults[0].PlayerResults[0].Score)
}

func TestLobby_ScoresForDestroyedSessionAreDropped(t *testing.T) {
	gate := newGatedScorer()
	l := newTestLobby(t, Options{Scorer: gate})
	c1 := connect(t, l, "c1", 8)
	send(l, "c1", types.JoinGame{PlayerName: "H"})
	expect[wire.PlayerJoined](t, c1)
	send(l, "c1", types.StartGame{})
	send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
	<-gate.started

	l.Inbox() <- Disconnect{ClientID: "c1"}
	c2 := connect(t, l, "c2", 8)
	send(l, "c2", types.JoinGame{PlayerName: "P"})
	expect[wire.PlayerJoined](t, c2)

	close(gate.release)
	recvNoMsg(t, c2, 100*time.Millisecond)

	v := state(t, l)
	assert.Equal(t, engine.PhaseWaiting, v.Phase)
	assert.Empty(t, v.History)
}

func TestLobby_RoundTimeoutForfeitsStragglers(t *testing.T) {
	l := newTestLobby(t, Options{RoundTimeout: 50 * time.Millisecond})
	c1, c2, hostID, playerID := joinPair(t, l)
	startGame(t, l, c1, c2)

	send(l, "c1", types.SelectHandShape{HandShape: prompt.HandGuu})
	expectUpdate(t, c1, wire.KindGameUpdate)

	timedOut := expectUpdate(t, c1, wire.KindGameUpdate)
	assert.True(t, timedOut.Players[1].HasSelected)

	end := expectUpdate(t, c1, wire.KindRoundEnd)
	results := end.RoundResults[0].PlayerResults
	require.Len(t, results, 2)
	assert.Equal(t, hostID, results[0].PlayerID)
	assert.Equal(t, 70, results[0].Score)
	assert.Equal(t, playerID, results[1].PlayerID)
	assert.True(t, results[1].Forfeit)
	assert.Equal(t, 0, results[1].Score)
}

func TestLobby_TimerGen_DropsStaleFires(t *testing.T) {
	l := newTestLobby(t, Options{RoundTimeout: time.Hour})
	c1, c2, _, _ := joinPair(t, l)
	startGame(t, l, c1, c2)

	l.Inbox() <- roundTimeout{gen: -1}

	recvNoMsg(t, c1, 50*time.Millisecond)
	v := state(t, l)
	assert.Equal(t, engine.PhasePlaying, v.Phase)
	for _, p := range v.Players {
		assert.Nil(t, p.Submission)
	}
}

func TestLobby_Shutdown_StopsTimer_NoFire(t *testing.T) {
	l := newTestLobby(t, Options{RoundTimeout: 50 * time.Millisecond})
	c1 := connect(t, l, "c1", 8)
	send(l, "c1", types.JoinGame{PlayerName: "H"})
	expect[wire.PlayerJoined](t, c1)
	send(l, "c1", types.StartGame{})
	expectUpdate(t, c1, wire.KindGameStart)

	l.Inbox() <- Shutdown{}

	recvNoMsg(t, c1, 150*time.Millisecond)
	select {
	case <-l.Done():
	case <-time.After(within):
		t.Fatal("lobby did not stop")
	}

	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	_, err := l.State(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
