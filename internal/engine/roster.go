package engine

import "github.com/DoyleJ11/handshape-backend/internal/prompt"

type Player struct {
	ID         string
	Name       string
	Score      int
	IsHost     bool
	Submission *Submission // nil until the player acts in the open round
}

type Submission struct {
	HandShape prompt.HandShape
	Image     string // data URL of the captured photo, optional
	Forfeit   bool   // round timed out before the player acted
	Seq       int    // order of first submission within the round
}

// Roster keeps players in join order.
type Roster struct {
	order []*Player
	index map[string]*Player
}

func NewRoster() *Roster {
	return &Roster{index: make(map[string]*Player)}
}

func (r *Roster) Add(p *Player) {
	r.order = append(r.order, p)
	r.index[p.ID] = p
}

// Remove deletes the player with id and returns it, or nil if absent.
func (r *Roster) Remove(id string) *Player {
	p, ok := r.index[id]
	if !ok {
		return nil
	}
	delete(r.index, id)
	for i, q := range r.order {
		if q.ID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p
}

func (r *Roster) Get(id string) *Player { return r.index[id] }

func (r *Roster) Len() int { return len(r.order) }

// Players returns the live players in join order. The slice is a copy but
// the players are not.
func (r *Roster) Players() []*Player {
	out := make([]*Player, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Roster) SubmittedCount() int {
	n := 0
	for _, p := range r.order {
		if p.Submission != nil {
			n++
		}
	}
	return n
}

func (r *Roster) ClearSubmissions() {
	for _, p := range r.order {
		p.Submission = nil
	}
}

// PromoteFirst makes the earliest-joined player the only host.
func (r *Roster) PromoteFirst() *Player {
	if len(r.order) == 0 {
		return nil
	}
	for _, p := range r.order {
		p.IsHost = false
	}
	r.order[0].IsHost = true
	return r.order[0]
}
