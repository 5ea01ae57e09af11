package lobby

import (
	"github.com/DoyleJ11/handshape-backend/internal/engine"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
	wire "github.com/DoyleJ11/handshape-backend/pkg/types"
)

// sessionView projects the session for one recipient. An empty recipient
// gets the public view. Open-round gestures never leave the server except
// in the recipient's own You block.
func sessionView(s *engine.Session, recipient string) wire.SessionView {
	v := wire.SessionView{
		ID:           s.ID,
		State:        string(s.Phase),
		CurrentRound: s.Round,
		TotalRounds:  s.Rules.TotalRounds,
		HostID:       s.HostID,
		Players:      []wire.PlayerView{},
		RoundResults: []wire.RoundResultView{},
		PlayerScores: map[string]int{},
	}

	for _, p := range s.Players() {
		v.Players = append(v.Players, playerView(p))
		v.PlayerScores[p.ID] = p.Score
	}

	if s.Prompt != nil && (s.Phase == engine.PhasePlaying || s.Phase == engine.PhaseRoundEnd) {
		pv := promptView(*s.Prompt)
		v.CurrentPrompt = &pv
	}

	for _, r := range s.History {
		v.RoundResults = append(v.RoundResults, roundResultView(r))
	}

	if s.Phase == engine.PhaseGameEnd {
		v.FinalLeaderboard = standingViews(s.FinalLeaderboard)
	}

	if p := s.Player(recipient); p != nil {
		you := &wire.YouView{PlayerID: p.ID, IsHost: p.IsHost}
		if p.Submission != nil && !p.Submission.Forfeit {
			you.HandShape = string(p.Submission.HandShape)
		}
		v.You = you
	}
	return v
}

func playerView(p *engine.Player) wire.PlayerView {
	return wire.PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		Score:       p.Score,
		IsHost:      p.IsHost,
		HasSelected: p.Submission != nil,
	}
}

func promptView(p prompt.Prompt) wire.PromptView {
	return wire.PromptView{
		ID:             p.ID,
		Shape1:         string(p.Shape1),
		Shape2:         string(p.Shape2),
		ObjectToMake:   p.ObjectToMake,
		ObjectToMakeEn: p.ObjectToMakeEn,
		FullText:       p.FullText,
	}
}

func roundResultView(r engine.RoundResult) wire.RoundResultView {
	out := wire.RoundResultView{
		Round:         r.Round,
		Prompt:        promptView(r.Prompt),
		PlayerResults: make([]wire.PlayerResultView, 0, len(r.PlayerResults)),
		Leaderboard:   standingViews(r.Leaderboard),
	}
	for _, pr := range r.PlayerResults {
		out.PlayerResults = append(out.PlayerResults, wire.PlayerResultView{
			PlayerID:           pr.PlayerID,
			PlayerName:         pr.PlayerName,
			HandShape:          string(pr.HandShape),
			Score:              pr.Score,
			Feedback:           pr.Feedback,
			Rank:               pr.Rank,
			Forfeit:            pr.Forfeit,
			ScoringUnavailable: pr.Unavailable,
		})
	}
	return out
}

func standingViews(ss []engine.Standing) []wire.StandingView {
	out := make([]wire.StandingView, 0, len(ss))
	for _, s := range ss {
		out = append(out, wire.StandingView{
			PlayerID:   s.PlayerID,
			PlayerName: s.PlayerName,
			TotalScore: s.TotalScore,
			Rank:       s.Rank,
		})
	}
	return out
}
