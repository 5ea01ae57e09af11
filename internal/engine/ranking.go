package engine

import (
	"sort"

	"github.com/DoyleJ11/handshape-backend/internal/prompt"
)

type RoundResult struct {
	Round         int
	Prompt        prompt.Prompt
	PlayerResults []PlayerResult // ranked, best first
	Leaderboard   []Standing     // cumulative, right after this round
}

type PlayerResult struct {
	PlayerID    string
	PlayerName  string
	HandShape   prompt.HandShape
	Score       int
	Feedback    string
	Forfeit     bool
	Unavailable bool // fallback verdict, the scorer failed
	Rank        int

	seq int
}

type Standing struct {
	PlayerID   string
	PlayerName string
	TotalScore int
	Rank       int
}

// RankRound orders results by score, best first. Equal scores keep
// submission order, and rank is the 1-based position, so ranks are always
// a permutation of 1..N.
func RankRound(results []PlayerResult) []PlayerResult {
	out := make([]PlayerResult, len(results))
	copy(out, results)

	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Leaderboard ranks players by cumulative score. Ties keep join order.
func Leaderboard(players []*Player) []Standing {
	out := make([]Standing, 0, len(players))
	for _, p := range players {
		out = append(out, Standing{PlayerID: p.ID, PlayerName: p.Name, TotalScore: p.Score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalScore > out[j].TotalScore })

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
