package model

import "time"

// Combat is a saved pairing of two Pokemon snapshots. The snapshots are
// copies; nothing ties them to the live catalogue beyond the copied id.
type Combat struct {
	ID        int       `json:"id" bson:"id"`
	First     Pokemon   `json:"first" bson:"first"`
	Second    Pokemon   `json:"second" bson:"second"`
	Versus    string    `json:"versus,omitempty" bson:"versus,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// QuizQuestion is an opaque quiz document.
type QuizQuestion map[string]any

// Clone returns a deep copy of q. Nested objects and arrays are copied too.
func (q QuizQuestion) Clone() QuizQuestion {
	if q == nil {
		return nil
	}
	return QuizQuestion(cloneValue(map[string]any(q)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case QuizQuestion:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// Involves reports whether pokemonID is on either side of the combat.
func (c *Combat) Involves(pokemonID int) bool {
	return c.First.ID == pokemonID || c.Second.ID == pokemonID
}

// SetHP sets the HP stat on every side whose snapshot id is pokemonID and
// reports whether any side matched.
func (c *Combat) SetHP(pokemonID, hp int) bool {
	matched := false
	for _, side := range []*Pokemon{&c.First, &c.Second} {
		if side.ID != pokemonID {
			continue
		}
		if side.Base == nil {
			side.Base = &Base{}
		}
		side.Base.HP = hp
		matched = true
	}
	return matched
}

// Clone returns a deep copy of c.
func (c Combat) Clone() Combat {
	out := c
	out.First = c.First.Clone()
	out.Second = c.Second.Clone()
	return out
}

// Newer orders combats by creation time, then by id.
func (c *Combat) Newer(other *Combat) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.After(other.CreatedAt)
	}
	return c.ID > other.ID
}

// MostRecent returns the index of the newest combat accepted by match, or -1.
func MostRecent(combats []Combat, match func(*Combat) bool) int {
	best := -1
	for i := range combats {
		if !match(&combats[i]) {
			continue
		}
		if best < 0 || combats[i].Newer(&combats[best]) {
			best = i
		}
	}
	return best
}
