package engine

import (
	"errors"

	"github.com/DoyleJ11/handshape-backend/internal/prompt"
)

var ErrNotAuthorized = errors.New("only the host can do that")
var ErrInvalidPhase = errors.New("action not allowed in the current phase")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrCapacityExceeded = errors.New("session is full")
var ErrAlreadyJoined = errors.New("player already joined")
var ErrInvalidName = errors.New("player name must not be empty")
var ErrInvalidHandShape = errors.New("invalid hand shape")
var ErrNoPrompts = errors.New("no prompts available")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrStaleSeal = errors.New("round was superseded before it could be sealed")
var ErrMalformed = errors.New("malformed message")
var ErrBallotAbandoned = errors.New("every player on the ballot has left")

type Phase string

const (
	PhaseWaiting  Phase = "waitingForPlayers"
	PhasePlaying  Phase = "playing"
	PhaseRoundEnd Phase = "roundEnd"
	PhaseGameEnd  Phase = "gameEnd"
)

type Rules struct {
	TotalRounds int
	MaxPlayers  int // 0 means no cap
}

type CommandType string

const (
	CmdJoin            CommandType = "Join"
	CmdStart           CommandType = "Start"
	CmdSelectHandShape CommandType = "SelectHandShape"
	CmdNextRound       CommandType = "NextRound"
	CmdLeave           CommandType = "Leave"
	CmdForfeitMissing  CommandType = "ForfeitMissing"
)

/*
	CmdJoin            -> EvtPlayerJoined
	CmdStart           -> EvtGameStarted -> EvtRoundStarted
	CmdSelectHandShape -> EvtSelectionRecorded [-> EvtRoundReady]
	CmdNextRound       -> EvtRoundStarted | EvtGameCompleted
	CmdLeave           -> EvtPlayerLeft [-> EvtHostChanged] [-> EvtRoundReady] [-> EvtSessionEmptied]
	CmdForfeitMissing  -> EvtRoundReady
	Seal (not a command, it carries evaluations) -> EvtRoundSealed
*/

type Command struct {
	Type      CommandType
	PlayerID  string
	Name      string
	HandShape prompt.HandShape
	Image     string
}

type EventType string

const (
	EvtPlayerJoined      EventType = "PlayerJoined"
	EvtPlayerLeft        EventType = "PlayerLeft"
	EvtHostChanged       EventType = "HostChanged"
	EvtGameStarted       EventType = "GameStarted"
	EvtRoundStarted      EventType = "RoundStarted"
	EvtSelectionRecorded EventType = "SelectionRecorded"
	EvtRoundReady        EventType = "RoundReady"
	EvtRoundSealed       EventType = "RoundSealed"
	EvtGameCompleted     EventType = "GameCompleted"
	EvtSessionEmptied    EventType = "SessionEmptied"
)

type Event struct {
	Type     EventType
	PlayerID string
	Round    int
}

// Session is the single shared game. It is not safe for concurrent use;
// its owner must serialize every call.
type Session struct {
	ID               string
	Phase            Phase
	Round            int
	Rules            Rules
	Prompt           *prompt.Prompt
	History          []RoundResult
	HostID           string
	FinalLeaderboard []Standing

	roster   *Roster
	prompts  *prompt.Selector
	sealing  *Ballot
	sealSeq  int
	submitSq int
}

// Apply validates cmd against the current phase and mutates the session.
// On error the session is left untouched.
func (s *Session) Apply(cmd Command) ([]Event, error) {
	switch cmd.Type {
	case CmdJoin:
		return s.join(cmd.PlayerID, cmd.Name)
	case CmdStart:
		return s.start(cmd.PlayerID)
	case CmdSelectHandShape:
		return s.selectHandShape(cmd.PlayerID, cmd.HandShape, cmd.Image)
	case CmdNextRound:
		return s.nextRound(cmd.PlayerID)
	case CmdLeave:
		return s.leave(cmd.PlayerID)
	case CmdForfeitMissing:
		return s.forfeitMissing()
	default:
		return nil, ErrUnsupportedCommand
	}
}

func (s *Session) join(id, name string) ([]Event, error) {
	name, ok := normalizeName(name)
	if !ok {
		return nil, ErrInvalidName
	}
	if s.roster.Get(id) != nil {
		return nil, ErrAlreadyJoined
	}
	if s.Rules.MaxPlayers > 0 && s.roster.Len() >= s.Rules.MaxPlayers {
		return nil, ErrCapacityExceeded
	}

	p := &Player{ID: id, Name: name}
	if s.roster.Len() == 0 {
		p.IsHost = true
		s.HostID = id
	}
	s.roster.Add(p)

	return []Event{{Type: EvtPlayerJoined, PlayerID: id}}, nil
}

func (s *Session) start(by string) ([]Event, error) {
	if s.Phase != PhaseWaiting {
		return nil, ErrInvalidPhase
	}
	if err := s.requireHost(by); err != nil {
		return nil, err
	}

	p, ok := s.prompts.Next()
	if !ok {
		return nil, ErrNoPrompts
	}

	s.Round = 1
	s.beginRound(p)

	return []Event{
		{Type: EvtGameStarted, PlayerID: by},
		{Type: EvtRoundStarted, Round: s.Round},
	}, nil
}

func (s *Session) selectHandShape(by string, shape prompt.HandShape, image string) ([]Event, error) {
	p := s.roster.Get(by)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	// A round with a seal in flight is closed to further input.
	if s.Phase != PhasePlaying || s.sealing != nil {
		return nil, ErrInvalidPhase
	}
	if !shape.Valid() {
		return nil, ErrInvalidHandShape
	}

	seq := s.submitSq
	if p.Submission != nil {
		seq = p.Submission.Seq // overwrite keeps the original position
	} else {
		s.submitSq++
	}
	p.Submission = &Submission{HandShape: shape, Image: image, Seq: seq}

	events := []Event{{Type: EvtSelectionRecorded, PlayerID: by, Round: s.Round}}
	if s.allSubmitted() {
		events = append(events, Event{Type: EvtRoundReady, Round: s.Round})
	}
	return events, nil
}

func (s *Session) nextRound(by string) ([]Event, error) {
	if s.Phase != PhaseRoundEnd {
		return nil, ErrInvalidPhase
	}
	if err := s.requireHost(by); err != nil {
		return nil, err
	}

	if s.Round >= s.Rules.TotalRounds {
		s.Phase = PhaseGameEnd
		s.Prompt = nil
		s.FinalLeaderboard = Leaderboard(s.roster.Players())
		return []Event{{Type: EvtGameCompleted, Round: s.Round}}, nil
	}

	p, ok := s.prompts.Next()
	if !ok {
		return nil, ErrNoPrompts
	}
	s.Round++
	s.beginRound(p)

	return []Event{{Type: EvtRoundStarted, Round: s.Round}}, nil
}

func (s *Session) leave(id string) ([]Event, error) {
	p := s.roster.Remove(id)
	if p == nil {
		return nil, ErrUnknownPlayer
	}

	events := []Event{{Type: EvtPlayerLeft, PlayerID: id}}

	if s.roster.Len() == 0 {
		s.HostID = ""
		s.sealing = nil
		return append(events, Event{Type: EvtSessionEmptied}), nil
	}

	if p.IsHost {
		next := s.roster.PromoteFirst()
		s.HostID = next.ID
		events = append(events, Event{Type: EvtHostChanged, PlayerID: next.ID})
	}

	// The departed player may have been the only one the round was waiting on.
	if s.Phase == PhasePlaying && s.sealing == nil && s.allSubmitted() {
		events = append(events, Event{Type: EvtRoundReady, Round: s.Round})
	}
	return events, nil
}

func (s *Session) forfeitMissing() ([]Event, error) {
	if s.Phase != PhasePlaying || s.sealing != nil {
		return nil, ErrInvalidPhase
	}
	for _, p := range s.roster.Players() {
		if p.Submission == nil {
			p.Submission = &Submission{Forfeit: true, Seq: s.submitSq}
			s.submitSq++
		}
	}
	if !s.allSubmitted() {
		return nil, nil
	}
	return []Event{{Type: EvtRoundReady, Round: s.Round}}, nil
}

func (s *Session) beginRound(p prompt.Prompt) {
	s.Phase = PhasePlaying
	s.Prompt = &p
	s.sealing = nil
	s.submitSq = 0
	s.roster.ClearSubmissions()
}

func (s *Session) requireHost(by string) error {
	if s.roster.Get(by) == nil {
		return ErrUnknownPlayer
	}
	if by != s.HostID {
		return ErrNotAuthorized
	}
	return nil
}

func (s *Session) allSubmitted() bool {
	n := s.roster.Len()
	return n >= 1 && s.roster.SubmittedCount() == n
}
