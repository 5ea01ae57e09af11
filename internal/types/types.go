package types

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/handshape-backend/internal/engine"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
)

var ErrMalformed = fmt.Errorf("%w: not a tagged JSON object", engine.ErrMalformed)
var ErrUnknownKind = fmt.Errorf("%w: unknown message type", engine.ErrMalformed)

// Inbound is one decoded client frame. The set of implementations is
// closed; callers switch on the concrete type.
type Inbound interface{ isInbound() }

type JoinGame struct {
	PlayerName string `json:"playerName"`
}

type StartGame struct{}

type SelectHandShape struct {
	SessionID     string           `json:"sessionId"`
	PlayerID      string           `json:"playerId"`
	HandShape     prompt.HandShape `json:"handShape"`
	CapturedImage string           `json:"capturedImage,omitempty"`
}

type NextRound struct{}

func (JoinGame) isInbound()        {}
func (StartGame) isInbound()       {}
func (SelectHandShape) isInbound() {}
func (NextRound) isInbound()       {}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a client frame. Fields not belonging to the kind are
// ignored; a missing or unknown tag is an error.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "joinGame":
		return decodeAs[JoinGame](data)
	case "startGame":
		return StartGame{}, nil
	case "selectHandShape":
		return decodeAs[SelectHandShape](data)
	case "nextRound":
		return NextRound{}, nil
	case "":
		return nil, ErrMalformed
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
