package types

// Client -> Server
// joinGame:
//   playerName: string
//
// startGame: {}
//
// selectHandShape:
//   sessionId: string
//   playerId: string
//   handShape: "グー" | "チョキ" | "パー"
//   capturedImage: string // optional data URL, scored by the AI evaluator
//
// nextRound: {}

// Server -> Client
const (
	KindPlayerJoined    = "playerJoined"    // joining connection only
	KindNewPlayerJoined = "newPlayerJoined" // everyone else
	KindGameStart       = "gameStart"
	KindGameUpdate      = "gameUpdate"
	KindRoundEnd        = "roundEnd"
	KindGameEnd         = "gameEnd"
	KindPlayerLeft      = "playerLeft"
	KindError           = "error"
)

// Message is any outbound frame.
type Message interface {
	Kind() string
}

type PlayerJoined struct {
	Type     string      `json:"type"`
	Player   PlayerView  `json:"player"`
	IsHost   bool        `json:"isHost"`
	PlayerID string      `json:"playerId"`
	Session  SessionView `json:"session"`
}

type NewPlayerJoined struct {
	Type      string      `json:"type"`
	NewPlayer PlayerView  `json:"newPlayer"`
	Session   SessionView `json:"session"`
}

// SessionUpdate carries gameStart, gameUpdate, roundEnd and gameEnd; only
// the tag and the projection differ.
type SessionUpdate struct {
	Type    string      `json:"type"`
	Session SessionView `json:"session"`
}

type PlayerLeft struct {
	Type     string      `json:"type"`
	PlayerID string      `json:"playerId"`
	Session  SessionView `json:"session"`
}

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m PlayerJoined) Kind() string    { return m.Type }
func (m NewPlayerJoined) Kind() string { return m.Type }
func (m SessionUpdate) Kind() string   { return m.Type }
func (m PlayerLeft) Kind() string      { return m.Type }
func (m Error) Kind() string           { return m.Type }

func NewError(code, message string) Error {
	return Error{Type: KindError, Code: code, Message: message}
}
