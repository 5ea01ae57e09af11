package engine

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/handshape-backend/internal/prompt"
)

const maxNameRunes = 24

func NewSession(id string, rules Rules, prompts *prompt.Selector) *Session {
	if rules.TotalRounds < 1 {
		rules.TotalRounds = 1
	}
	return &Session{
		ID:      id,
		Phase:   PhaseWaiting, // Round stays 1 until the game starts
		Round:   1,
		Rules:   rules,
		roster:  NewRoster(),
		prompts: prompts,
	}
}

// Players returns the roster in join order.
func (s *Session) Players() []*Player { return s.roster.Players() }

func (s *Session) Player(id string) *Player { return s.roster.Get(id) }

func (s *Session) Empty() bool { return s.roster.Len() == 0 }

// PromptsLeft is how many prompts can be drawn before the catalog repeats.
func (s *Session) PromptsLeft() int { return s.prompts.Remaining() }

// GameSummary is the part of a finished game worth keeping.
type GameSummary struct {
	SessionID   string
	TotalRounds int
	Rounds      []RoundResult
	Final       []Standing
}

func (s *Session) Summary() GameSummary {
	final := s.FinalLeaderboard
	if final == nil {
		final = Leaderboard(s.roster.Players())
	}
	return GameSummary{
		SessionID:   s.ID,
		TotalRounds: s.Rules.TotalRounds,
		Rounds:      append([]RoundResult(nil), s.History...),
		Final:       final,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// fillers render as blank without being spaces or format characters.
var fillers = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x115f, Hi: 0x1160, Stride: 1},
		{Lo: 0x2800, Hi: 0x2800, Stride: 1},
		{Lo: 0x3164, Hi: 0x3164, Stride: 1},
		{Lo: 0xffa0, Hi: 0xffa0, Stride: 1},
	},
}

var invisible = runes.Predicate(func(r rune) bool {
	return unicode.In(r, unicode.Cc, unicode.Cf, fillers)
})

// normalizeName folds compatibility forms (full-width latin, half-width
// kana), drops control, format and filler runes and trims the result to
// maxNameRunes.
func normalizeName(name string) (string, bool) {
	name, _, err := transform.String(transform.Chain(norm.NFKC, runes.Remove(invisible)), name)
	if err != nil {
		return "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	return name, true
}

// Error codes sent to clients.
const (
	CodeMalformed        = "MalformedMessage"
	CodeNotAuthorized    = "NotAuthorized"
	CodeInvalidPhase     = "InvalidPhase"
	CodeUnknownPlayer    = "UnknownPlayer"
	CodeCapacityExceeded = "CapacityExceeded"
	CodeInvalidInput     = "InvalidInput"
	CodeInternal         = "InternalError"
)

// Kind maps err to the code a client sees.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return CodeMalformed
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, ErrInvalidPhase):
		return CodeInvalidPhase
	case errors.Is(err, ErrUnknownPlayer):
		return CodeUnknownPlayer
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidHandShape), errors.Is(err, ErrAlreadyJoined):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}
