package engine

// Registry holds players by slot id-1.
type Registry struct {
	slots []*Player
}

func NewRegistry(capacity int) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	return &Registry{slots: make([]*Player, capacity)}
}

// Register stores p at slot p.ID-1, growing the table for actor numbers past
// the expected count. A second registration for the same id replaces the first.
func (r *Registry) Register(p *Player) {
	if p == nil || p.ID <= NoPlayer {
		return
	}
	idx := int(p.ID) - 1
	for idx >= len(r.slots) {
		r.slots = append(r.slots, nil)
	}
	r.slots[idx] = p
}

func (r *Registry) Get(id PlayerID) (*Player, bool) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(r.slots) || r.slots[idx] == nil {
		return nil, false
	}
	return r.slots[idx], true
}

func (r *Registry) Local() (*Player, bool) {
	for _, p := range r.slots {
		if p != nil && p.IsLocal {
			return p, true
		}
	}
	return nil, false
}

// Players returns the registered players in slot order.
func (r *Registry) Players() []*Player {
	out := make([]*Player, 0, len(r.slots))
	for _, p := range r.slots {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Len() int {
	n := 0
	for _, p := range r.slots {
		if p != nil {
			n++
		}
	}
	return n
}
