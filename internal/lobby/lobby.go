package lobby

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/handshape-backend/internal/archive"
	"github.com/DoyleJ11/handshape-backend/internal/engine"
	"github.com/DoyleJ11/handshape-backend/internal/hub"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
	"github.com/DoyleJ11/handshape-backend/internal/scoring"
	"github.com/DoyleJ11/handshape-backend/internal/types"
	wire "github.com/DoyleJ11/handshape-backend/pkg/types"
)

var ErrClosed = errors.New("lobby is shut down")

type Msg interface{ isLobbyMsg() }

// Connect registers a transport connection. Nothing is sent to it until
// it joins or something is broadcast.
type Connect struct {
	ClientID string
	Outbox   chan wire.Message // owned by the lobby from here on
	Reply    chan error
}

func (Connect) isLobbyMsg() {}

// Disconnect is the transport reporting a lost connection. A joined
// player leaves the session.
type Disconnect struct{ ClientID string }

func (Disconnect) isLobbyMsg() {}

type FromClient struct {
	ClientID string
	In       types.Inbound
}

func (FromClient) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type scoresReady struct {
	ballot engine.Ballot
	evals  map[string]engine.Evaluation
}

func (scoresReady) isLobbyMsg() {}

type roundTimeout struct{ gen int }

func (roundTimeout) isLobbyMsg() {}

// View is a race-free copy of the lobby for tests and the HTTP API.
type View struct {
	NumClients int
	Present    bool // a session exists
	SessionID  string
	Phase      engine.Phase
	Round      int
	HostID     string
	Players    []engine.Player
	History    []engine.RoundResult
	Sealing    bool
	Public     wire.SessionView
}

// Scorer turns a frozen round into evaluations. It runs outside the
// lobby goroutine.
type Scorer interface {
	Score(ctx context.Context, b engine.Ballot) map[string]engine.Evaluation
}

type Options struct {
	Rules        engine.Rules
	Catalog      prompt.Catalog
	Scorer       Scorer
	Recorder     archive.Recorder
	RoundTimeout time.Duration // 0 waits forever for stragglers
	IdleTimeout  time.Duration // 0 disables the liveness sweep
	Rand         *rand.Rand    // prompt order; nil seeds randomly
	NewID        func() string
	Logger       *zap.Logger
}

type Lobby struct {
	inbox   chan Msg
	hub     *hub.Hub
	session *engine.Session // nil until the first join, and again once everyone has left
	opts    Options
	log     *zap.Logger

	timer    *time.Timer
	timerGen int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

func NewLobby(parent context.Context, h *hub.Hub, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scorer == nil {
		opts.Scorer = scoring.NewScorer(scoring.NewRandom(nil), scoring.Options{}, opts.Logger)
	}
	if opts.Catalog == nil {
		opts.Catalog = prompt.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = archive.Nop{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	l := &Lobby{
		inbox:  make(chan Msg, 64),
		hub:    h,
		opts:   opts,
		log:    opts.Logger.Named("lobby"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go l.loop()
	return l
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers msg unless ctx ends or the lobby has stopped first.
func (l *Lobby) Send(ctx context.Context, msg Msg) error {
	select {
	case l.inbox <- msg:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the lobby goroutine and its helpers have exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Reject answers one connection with an error frame. Safe from any
// goroutine; used by the transport for frames that never decode.
func (l *Lobby) Reject(clientID string, err error) {
	l.log.Debug("rejecting message", zap.String("client_id", clientID), zap.Error(err))
	l.hub.Send(clientID, wire.NewError(engine.Kind(err), err.Error()))
}

// Touch marks the connection alive. Safe from any goroutine.
func (l *Lobby) Touch(clientID string) { l.hub.Touch(clientID) }

func (l *Lobby) loop() {
	defer func() {
		l.wg.Wait()
		close(l.done)
	}()

	var sweep <-chan time.Time
	if l.opts.IdleTimeout > 0 {
		t := time.NewTicker(l.opts.IdleTimeout / 2)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-sweep:
			l.sweepIdle()

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Connect:
				err := l.hub.Register(msg.ClientID, msg.Outbox)
				if err == nil {
					l.log.Debug("client connected", zap.String("client_id", msg.ClientID))
				}
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case Disconnect:
				l.disconnect(msg.ClientID)

			case FromClient:
				if err := l.handle(msg.ClientID, msg.In); err != nil {
					l.Reject(msg.ClientID, err)
				}

			case scoresReady:
				l.commitSeal(msg.ballot, msg.evals)

			case roundTimeout:
				l.onRoundTimeout(msg.gen)

			case GetState:
				// reflect internal state without data races
				msg.Reply <- l.view()

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handle(clientID string, in types.Inbound) error {
	if join, ok := in.(types.JoinGame); ok {
		return l.join(clientID, join.PlayerName)
	}

	playerID, ok := l.hub.PlayerOf(clientID)
	if !ok || l.session == nil {
		return engine.ErrUnknownPlayer
	}

	switch msg := in.(type) {
	case types.StartGame:
		return l.apply(engine.Command{Type: engine.CmdStart, PlayerID: playerID})

	case types.SelectHandShape:
		if msg.PlayerID != "" && msg.PlayerID != playerID {
			return engine.ErrNotAuthorized
		}
		if msg.SessionID != "" && msg.SessionID != l.session.ID {
			return engine.ErrInvalidPhase
		}
		return l.apply(engine.Command{
			Type:      engine.CmdSelectHandShape,
			PlayerID:  playerID,
			HandShape: msg.HandShape,
			Image:     msg.CapturedImage,
		})

	case types.NextRound:
		return l.apply(engine.Command{Type: engine.CmdNextRound, PlayerID: playerID})

	default:
		return engine.ErrUnsupportedCommand
	}
}

func (l *Lobby) join(clientID, name string) error {
	if _, ok := l.hub.PlayerOf(clientID); ok {
		return engine.ErrAlreadyJoined
	}

	created := false
	if l.session == nil {
		l.session = engine.NewSession(l.opts.NewID(), l.opts.Rules, prompt.NewSelector(l.opts.Catalog, l.opts.Rand))
		created = true
	}

	playerID := l.opts.NewID()
	if _, err := l.session.Apply(engine.Command{Type: engine.CmdJoin, PlayerID: playerID, Name: name}); err != nil {
		if created {
			l.session = nil
		}
		return err
	}
	if err := l.hub.Bind(clientID, playerID); err != nil {
		// the connection went away between Connect and now
		_, _ = l.session.Apply(engine.Command{Type: engine.CmdLeave, PlayerID: playerID})
		if l.session.Empty() {
			l.session = nil
		}
		return err
	}

	if created {
		l.log.Info("session created", zap.String("session_id", l.session.ID))
	}
	p := l.session.Player(playerID)
	l.log.Info("player joined",
		zap.String("session_id", l.session.ID),
		zap.String("player_id", playerID),
		zap.String("name", p.Name),
		zap.Bool("host", p.IsHost),
	)

	l.hub.Send(clientID, wire.PlayerJoined{
		Type:     wire.KindPlayerJoined,
		Player:   playerView(p),
		IsHost:   p.IsHost,
		PlayerID: playerID,
		Session:  sessionView(l.session, playerID),
	})
	l.broadcastExcept(clientID, func(recipient string) wire.Message {
		return wire.NewPlayerJoined{
			Type:      wire.KindNewPlayerJoined,
			NewPlayer: playerView(p),
			Session:   sessionView(l.session, recipient),
		}
	})
	return nil
}

// apply runs a command on the session and publishes what changed.
func (l *Lobby) apply(cmd engine.Command) error {
	events, err := l.session.Apply(cmd)
	if err != nil {
		return err
	}

	switch {
	case engine.ContainsEvent(events, engine.EvtGameStarted):
		l.log.Info("game started",
			zap.String("session_id", l.session.ID),
			zap.String("prompt_id", l.session.Prompt.ID),
			zap.Int("prompts_left", l.session.PromptsLeft()),
		)
		l.armTimer()
		l.broadcastSession(wire.KindGameStart)

	case engine.ContainsEvent(events, engine.EvtGameCompleted):
		l.log.Info("game completed", zap.String("session_id", l.session.ID), zap.Int("rounds", len(l.session.History)))
		l.stopTimer()
		l.broadcastSession(wire.KindGameEnd)
		l.archive(l.session.Summary())

	case engine.ContainsEvent(events, engine.EvtRoundStarted):
		l.log.Info("round started",
			zap.String("session_id", l.session.ID),
			zap.Int("round", l.session.Round),
			zap.String("prompt_id", l.session.Prompt.ID),
			zap.Int("prompts_left", l.session.PromptsLeft()),
		)
		l.armTimer()
		l.broadcastSession(wire.KindGameUpdate)

	default:
		// partial progress: who has selected, never what
		l.broadcastSession(wire.KindGameUpdate)
	}

	if engine.ContainsEvent(events, engine.EvtRoundReady) {
		l.beginSeal()
	}
	return nil
}

func (l *Lobby) disconnect(clientID string) {
	playerID, ok := l.hub.Unregister(clientID)
	l.log.Debug("client disconnected", zap.String("client_id", clientID))
	if !ok || l.session == nil {
		return
	}

	events, err := l.session.Apply(engine.Command{Type: engine.CmdLeave, PlayerID: playerID})
	if err != nil {
		l.log.Warn("leave failed", zap.String("player_id", playerID), zap.Error(err))
		return
	}
	l.log.Info("player left", zap.String("session_id", l.session.ID), zap.String("player_id", playerID))

	if engine.ContainsEvent(events, engine.EvtSessionEmptied) {
		l.log.Info("session destroyed", zap.String("session_id", l.session.ID))
		l.stopTimer()
		l.session = nil
		return
	}

	for _, e := range events {
		if e.Type == engine.EvtHostChanged {
			l.log.Info("host reassigned", zap.String("session_id", l.session.ID), zap.String("player_id", e.PlayerID))
		}
	}

	l.broadcast(func(recipient string) wire.Message {
		return wire.PlayerLeft{
			Type:     wire.KindPlayerLeft,
			PlayerID: playerID,
			Session:  sessionView(l.session, recipient),
		}
	})

	if engine.ContainsEvent(events, engine.EvtRoundReady) {
		l.beginSeal()
	}
}

// beginSeal freezes the round and scores it off the lobby goroutine. The
// result comes back as scoresReady.
func (l *Lobby) beginSeal() {
	b, ok := l.session.BeginSeal()
	if !ok {
		return
	}
	l.stopTimer()
	l.log.Info("sealing round",
		zap.String("session_id", b.SessionID),
		zap.Int("round", b.Round),
		zap.Int("entries", len(b.Entries)),
	)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		evals := l.opts.Scorer.Score(l.ctx, b)
		select {
		case l.inbox <- scoresReady{ballot: b, evals: evals}:
		case <-l.ctx.Done():
		}
	}()
}

func (l *Lobby) commitSeal(b engine.Ballot, evals map[string]engine.Evaluation) {
	if l.session == nil {
		l.log.Debug("dropping scores for a destroyed session", zap.String("session_id", b.SessionID))
		return
	}
	result, _, err := l.session.Seal(b, evals)
	if errors.Is(err, engine.ErrBallotAbandoned) {
		// only late joiners remain; their round is still open
		l.log.Info("ballot abandoned", zap.String("session_id", b.SessionID), zap.Int("round", b.Round))
		l.armTimer()
		l.broadcastSession(wire.KindGameUpdate)
		l.beginSeal()
		return
	}
	if err != nil {
		l.log.Debug("dropping stale scores", zap.String("session_id", b.SessionID), zap.Int("round", b.Round), zap.Error(err))
		return
	}

	l.log.Info("round sealed",
		zap.String("session_id", l.session.ID),
		zap.Int("round", result.Round),
		zap.Int("players", len(result.PlayerResults)),
	)
	l.broadcastSession(wire.KindRoundEnd)
}

func (l *Lobby) armTimer() {
	l.stopTimer()
	if l.opts.RoundTimeout <= 0 {
		return
	}
	gen := l.timerGen
	l.timer = time.AfterFunc(l.opts.RoundTimeout, func() {
		select {
		case l.inbox <- roundTimeout{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

// stopTimer invalidates any pending fire; a fire already queued in the
// inbox carries the old generation and is dropped.
func (l *Lobby) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerGen++
}

func (l *Lobby) onRoundTimeout(gen int) {
	if gen != l.timerGen || l.session == nil {
		return
	}
	l.timer = nil

	events, err := l.session.Apply(engine.Command{Type: engine.CmdForfeitMissing})
	if err != nil {
		return
	}
	l.log.Info("round timed out", zap.String("session_id", l.session.ID), zap.Int("round", l.session.Round))
	l.broadcastSession(wire.KindGameUpdate)

	if engine.ContainsEvent(events, engine.EvtRoundReady) {
		l.beginSeal()
	}
}

func (l *Lobby) sweepIdle() {
	for _, id := range l.hub.Stale(time.Now().Add(-l.opts.IdleTimeout)) {
		l.log.Info("closing idle client", zap.String("client_id", id))
		l.hub.Close(id)
	}
}

func (l *Lobby) archive(g engine.GameSummary) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(l.ctx), 10*time.Second)
		defer cancel()
		if err := l.opts.Recorder.RecordGame(ctx, g); err != nil {
			l.log.Error("archiving game failed", zap.String("session_id", g.SessionID), zap.Error(err))
		}
	}()
}

func (l *Lobby) broadcastSession(kind string) {
	l.broadcast(func(recipient string) wire.Message {
		return wire.SessionUpdate{Type: kind, Session: sessionView(l.session, recipient)}
	})
}

func (l *Lobby) broadcast(build func(recipient string) wire.Message) {
	l.broadcastExcept("", build)
}

// broadcastExcept builds one projection per connection. Delivery never
// blocks; a slow connection is dropped by the hub.
func (l *Lobby) broadcastExcept(skip string, build func(recipient string) wire.Message) {
	l.hub.Each(func(clientID, playerID string) {
		if clientID == skip {
			return
		}
		l.hub.Send(clientID, build(playerID))
	})
}

func (l *Lobby) view() View {
	v := View{NumClients: l.hub.Len()}
	s := l.session
	if s == nil {
		return v
	}

	v.Present = true
	v.SessionID = s.ID
	v.Phase = s.Phase
	v.Round = s.Round
	v.HostID = s.HostID
	v.Sealing = s.Sealing()
	v.History = append([]engine.RoundResult(nil), s.History...)
	for _, p := range s.Players() {
		v.Players = append(v.Players, *p)
	}
	v.Public = sessionView(s, "")
	return v
}

func (l *Lobby) shutdown() {
	l.stopTimer()
	l.hub.Each(func(clientID, _ string) {
		l.hub.Close(clientID) // tell clients no more messages
	})
	l.cancel()
}
