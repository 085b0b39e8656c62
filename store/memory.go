package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/stevemurr/pokedex-api/model"
)

// Collection names, shared by the file, sqlite and mongo layouts.
const (
	collPokemons  = "pokemons"
	collCombats   = "combats"
	collQuestions = "quizz"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use: reads share the lock, every mutation is exclusive.
//
// Mutations are copy-on-write. The next state of a collection is handed to
// persist (when set) and only swapped in once persist succeeds, so a failed
// write never leaves memory ahead of disk.
type MemoryStore struct {
	mu        sync.RWMutex
	pokemons  []model.Pokemon
	combats   []model.Combat
	questions []model.QuizQuestion
	closed    bool

	assetBase string
	now       func() time.Time
	persist   func(collection string, v any) error
}

func NewMemoryStore(assetBase string) *MemoryStore {
	return &MemoryStore{assetBase: assetBase, now: nowUTC}
}

func (m *MemoryStore) commit(collection string, v any) error {
	if m.persist == nil {
		return nil
	}
	return errors.Wrapf(m.persist(collection, v), "persist %s", collection)
}

func (m *MemoryStore) indexOf(id int) int {
	for i := range m.pokemons {
		if m.pokemons[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) List(_ context.Context) ([]model.Pokemon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	out := make([]model.Pokemon, len(m.pokemons))
	for i := range m.pokemons {
		out[i] = m.pokemons[i].Clone()
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id int) (*model.Pokemon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	i := m.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	p := m.pokemons[i].Clone()
	return &p, nil
}

func (m *MemoryStore) Create(_ context.Context, p model.Pokemon) (*model.Pokemon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	ids := make([]int, len(m.pokemons))
	for i := range m.pokemons {
		ids[i] = m.pokemons[i].ID
	}
	p, err := prepareCreate(p, model.NextID(ids...), m.assetBase)
	if err != nil {
		return nil, err
	}
	next := make([]model.Pokemon, len(m.pokemons), len(m.pokemons)+1)
	copy(next, m.pokemons)
	next = append(next, p)
	if err := m.commit(collPokemons, next); err != nil {
		return nil, err
	}
	m.pokemons = next
	out := p.Clone()
	return &out, nil
}

func (m *MemoryStore) Update(_ context.Context, id int, patch model.PokemonPatch) (*model.Pokemon, error) {
	if err := model.ValidatePatch(patch); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	i := m.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	updated := m.pokemons[i].Clone()
	updated.Apply(patch)

	next := make([]model.Pokemon, len(m.pokemons))
	copy(next, m.pokemons)
	next[i] = updated
	if err := m.commit(collPokemons, next); err != nil {
		return nil, err
	}
	m.pokemons = next
	out := updated.Clone()
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	i := m.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	next := append(m.pokemons[:i:i], m.pokemons[i+1:]...)
	if err := m.commit(collPokemons, next); err != nil {
		return err
	}
	m.pokemons = next
	return nil
}

func (m *MemoryStore) MinID(_ context.Context) (int, error) {
	return m.bound(func(a, b int) bool { return a < b })
}

func (m *MemoryStore) MaxID(_ context.Context) (int, error) {
	return m.bound(func(a, b int) bool { return a > b })
}

func (m *MemoryStore) bound(better func(a, b int) bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrUnavailable
	}
	if len(m.pokemons) == 0 {
		return 0, ErrEmptyStore
	}
	id := m.pokemons[0].ID
	for _, p := range m.pokemons[1:] {
		if better(p.ID, id) {
			id = p.ID
		}
	}
	return id, nil
}

func (m *MemoryStore) ListCombats(_ context.Context) ([]model.Combat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	out := make([]model.Combat, len(m.combats))
	for i := range m.combats {
		out[i] = m.combats[i].Clone()
	}
	return out, nil
}

func (m *MemoryStore) SaveCombat(_ context.Context, c model.Combat) (*model.Combat, error) {
	if err := model.ValidateCombat(c); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	ids := make([]int, len(m.combats))
	for i := range m.combats {
		ids[i] = m.combats[i].ID
	}
	c = c.Clone()
	c.ID = model.NextID(ids...)
	c.CreatedAt = m.now()

	next := make([]model.Combat, len(m.combats), len(m.combats)+1)
	copy(next, m.combats)
	next = append(next, c)
	if err := m.commit(collCombats, next); err != nil {
		return nil, err
	}
	m.combats = next
	out := c.Clone()
	return &out, nil
}

func (m *MemoryStore) ApplyDamage(_ context.Context, combatID, pokemonID, hp int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	i := -1
	if combatID > 0 {
		for j := range m.combats {
			if m.combats[j].ID == combatID {
				i = j
				break
			}
		}
	} else {
		i = model.MostRecent(m.combats, func(c *model.Combat) bool { return c.Involves(pokemonID) })
	}
	if i < 0 {
		return ErrNotFound
	}
	updated := m.combats[i].Clone()
	if !updated.SetHP(pokemonID, hp) {
		return ErrNotFound
	}
	next := make([]model.Combat, len(m.combats))
	copy(next, m.combats)
	next[i] = updated
	if err := m.commit(collCombats, next); err != nil {
		return err
	}
	m.combats = next
	return nil
}

func (m *MemoryStore) VersusImage(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", ErrUnavailable
	}
	i := model.MostRecent(m.combats, func(c *model.Combat) bool { return c.Versus != "" })
	if i < 0 {
		return "", ErrNotFound
	}
	return m.combats[i].Versus, nil
}

func (m *MemoryStore) ListQuestions(_ context.Context) ([]model.QuizQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	out := make([]model.QuizQuestion, len(m.questions))
	for i, q := range m.questions {
		out[i] = q.Clone()
	}
	return out, nil
}

// SeedPokemons replaces records with a matching id in place and appends the
// rest, keeping their ids.
func (m *MemoryStore) SeedPokemons(_ context.Context, ps []model.Pokemon) error {
	for _, p := range ps {
		if p.ID <= 0 {
			return &model.ValidationError{Fields: []string{"id"}}
		}
		if err := model.Validate(p); err != nil {
			return errors.Wrapf(err, "pokemon %d", p.ID)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	next := make([]model.Pokemon, len(m.pokemons), len(m.pokemons)+len(ps))
	copy(next, m.pokemons)
	pos := make(map[int]int, len(next))
	for i := range next {
		pos[next[i].ID] = i
	}
	for _, p := range ps {
		if i, ok := pos[p.ID]; ok {
			next[i] = p.Clone()
			continue
		}
		pos[p.ID] = len(next)
		next = append(next, p.Clone())
	}
	if err := m.commit(collPokemons, next); err != nil {
		return err
	}
	m.pokemons = next
	return nil
}

func (m *MemoryStore) SeedQuestions(_ context.Context, qs []model.QuizQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	next := make([]model.QuizQuestion, len(m.questions), len(m.questions)+len(qs))
	copy(next, m.questions)
	for _, q := range qs {
		next = append(next, q.Clone())
	}
	if err := m.commit(collQuestions, next); err != nil {
		return err
	}
	m.questions = next
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
