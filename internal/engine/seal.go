package engine

import "github.com/DoyleJ11/handshape-backend/internal/prompt"

// Ballot is a frozen copy of a complete round, handed to the scorer while
// the session keeps running.
type Ballot struct {
	SessionID string
	Round     int
	Prompt    prompt.Prompt
	Entries   []BallotEntry // submission order

	token int
}

type BallotEntry struct {
	PlayerID   string
	PlayerName string
	HandShape  prompt.HandShape
	Image      string
	Forfeit    bool

	seq int
}

// Evaluation is the scorer's verdict for one entry.
type Evaluation struct {
	Points      int
	Feedback    string
	Unavailable bool // scorer failed and a fallback was substituted
}

// BeginSeal freezes the round once every live player has submitted. It
// returns ok=false while a seal is already in flight, so a round is handed
// to the scorer at most once.
func (s *Session) BeginSeal() (Ballot, bool) {
	if s.Phase != PhasePlaying || s.sealing != nil || !s.allSubmitted() {
		return Ballot{}, false
	}

	s.sealSeq++
	b := Ballot{
		SessionID: s.ID,
		Round:     s.Round,
		Prompt:    *s.Prompt,
		token:     s.sealSeq,
	}
	for _, p := range s.roster.Players() {
		sub := p.Submission
		b.Entries = append(b.Entries, BallotEntry{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			HandShape:  sub.HandShape,
			Image:      sub.Image,
			Forfeit:    sub.Forfeit,
			seq:        sub.Seq,
		})
	}
	s.sealing = &b
	return b, true
}

// Sealing reports whether a ballot is out for scoring.
func (s *Session) Sealing() bool { return s.sealing != nil }

// Seal commits the scored ballot: ranks the round, adds each round score
// to the player's total, recomputes the leaderboard and moves to RoundEnd.
// Players who left while the ballot was out are dropped from the result.
// If none of them is left the ballot is abandoned with ErrBallotAbandoned
// and the round stays open for whoever joined meanwhile.
func (s *Session) Seal(b Ballot, evals map[string]Evaluation) (*RoundResult, []Event, error) {
	if b.SessionID != s.ID || s.Phase != PhasePlaying || s.sealing == nil ||
		s.sealing.token != b.token || s.Round != b.Round {
		return nil, nil, ErrStaleSeal
	}

	results := make([]PlayerResult, 0, len(b.Entries))
	for _, e := range b.Entries {
		if s.roster.Get(e.PlayerID) == nil {
			continue
		}
		r := PlayerResult{
			PlayerID:   e.PlayerID,
			PlayerName: e.PlayerName,
			HandShape:  e.HandShape,
			Forfeit:    e.Forfeit,
			seq:        e.seq,
		}
		if ev, ok := evals[e.PlayerID]; ok && !e.Forfeit {
			r.Score = clampScore(ev.Points)
			r.Feedback = ev.Feedback
			r.Unavailable = ev.Unavailable
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		s.sealing = nil
		return nil, nil, ErrBallotAbandoned
	}

	ranked := RankRound(results)
	for _, r := range ranked {
		s.roster.Get(r.PlayerID).Score += r.Score
	}

	result := RoundResult{
		Round:         b.Round,
		Prompt:        b.Prompt,
		PlayerResults: ranked,
		Leaderboard:   Leaderboard(s.roster.Players()),
	}
	s.History = append(s.History, result)
	s.Phase = PhaseRoundEnd
	s.sealing = nil

	return &s.History[len(s.History)-1], []Event{{Type: EvtRoundSealed, Round: b.Round}}, nil
}

func clampScore(n int) int {
	return max(0, min(100, n))
}
