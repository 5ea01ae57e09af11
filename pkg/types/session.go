package types

// SessionView is what a client sees of the game. Before a round seals,
// players expose only hasSelected; the recipient's own choice is under You.
//
//	state: "waitingForPlayers" | "playing" | "roundEnd" | "gameEnd"
//	currentPrompt: only while playing or at roundEnd
//	roundResults: sealed rounds, oldest first
//	finalLeaderboard: only at gameEnd
type SessionView struct {
	ID               string            `json:"id"`
	State            string            `json:"state"`
	Players          []PlayerView      `json:"players"`
	CurrentPrompt    *PromptView       `json:"currentPrompt,omitempty"`
	CurrentRound     int               `json:"currentRound"`
	TotalRounds      int               `json:"totalRounds"`
	HostID           string            `json:"hostId"`
	RoundResults     []RoundResultView `json:"roundResults"`
	PlayerScores     map[string]int    `json:"playerScores"`
	FinalLeaderboard []StandingView    `json:"finalLeaderboard,omitempty"`
	You              *YouView          `json:"you,omitempty"`
}

type PlayerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	IsHost      bool   `json:"isHost"`
	HasSelected bool   `json:"hasSelected"`
}

// YouView is private to the recipient.
type YouView struct {
	PlayerID  string `json:"playerId"`
	IsHost    bool   `json:"isHost"`
	HandShape string `json:"handShape,omitempty"`
}

type PromptView struct {
	ID             string `json:"id"`
	Shape1         string `json:"shape1"`
	Shape2         string `json:"shape2"`
	ObjectToMake   string `json:"objectToMake"`
	ObjectToMakeEn string `json:"objectToMakeEn"`
	FullText       string `json:"fullText"`
}

type RoundResultView struct {
	Round         int                `json:"round"`
	Prompt        PromptView         `json:"prompt"`
	PlayerResults []PlayerResultView `json:"playerResults"`
	Leaderboard   []StandingView     `json:"leaderboard"`
}

type PlayerResultView struct {
	PlayerID           string `json:"playerId"`
	PlayerName         string `json:"playerName"`
	HandShape          string `json:"handShape,omitempty"`
	Score              int    `json:"score"`
	Feedback           string `json:"feedback,omitempty"`
	Rank               int    `json:"rank"`
	Forfeit            bool   `json:"forfeit,omitempty"`
	ScoringUnavailable bool   `json:"scoringUnavailable,omitempty"`
}

type StandingView struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	TotalScore int    `json:"totalScore"`
	Rank       int    `json:"rank"`
}
