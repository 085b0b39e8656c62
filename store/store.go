// Package store defines the catalogue store interfaces and their backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stevemurr/pokedex-api/model"
)

var (
	// ErrNotFound is returned when no record matches the requested id.
	ErrNotFound = errors.New("not found")
	// ErrEmptyStore is returned by MinID and MaxID on an empty catalogue.
	ErrEmptyStore = errors.New("store is empty")
	// ErrUnavailable is returned once a store is closed or not connected.
	ErrUnavailable = errors.New("store unavailable")
)

// PokemonStore is the catalogue contract shared by every backend.
type PokemonStore interface {
	// List returns the whole catalogue in storage order.
	List(ctx context.Context) ([]model.Pokemon, error)

	// Get returns a single record, or ErrNotFound.
	Get(ctx context.Context, id int) (*model.Pokemon, error)

	// Create validates p, assigns it max(id)+1 and stores it. The image is
	// derived from the new id when p carries none.
	Create(ctx context.Context, p model.Pokemon) (*model.Pokemon, error)

	// Update merges patch into the record with the given id.
	Update(ctx context.Context, id int, patch model.PokemonPatch) (*model.Pokemon, error)

	// Delete removes a record. Remaining ids are never renumbered.
	Delete(ctx context.Context, id int) error

	// MinID and MaxID return the id bounds, or ErrEmptyStore.
	MinID(ctx context.Context) (int, error)
	MaxID(ctx context.Context) (int, error)
}

// CombatStore records battles between two Pokemon snapshots.
type CombatStore interface {
	// ListCombats returns every saved combat in ascending id order.
	ListCombats(ctx context.Context) ([]model.Combat, error)

	// SaveCombat inserts c with the next combat id and the current time.
	SaveCombat(ctx context.Context, c model.Combat) (*model.Combat, error)

	// ApplyDamage sets the HP of pokemonID inside one combat. A zero
	// combatID targets the most recent combat the Pokemon took part in.
	ApplyDamage(ctx context.Context, combatID, pokemonID, hp int) error

	// VersusImage returns the versus artwork of the most recent combat that
	// has one, or ErrNotFound.
	VersusImage(ctx context.Context) (string, error)
}

// QuizStore serves the read-only quiz questions.
type QuizStore interface {
	ListQuestions(ctx context.Context) ([]model.QuizQuestion, error)
}

// Seeder bulk-loads records while keeping their ids.
type Seeder interface {
	SeedPokemons(ctx context.Context, ps []model.Pokemon) error
	SeedQuestions(ctx context.Context, qs []model.QuizQuestion) error
}

// Store is everything a backend provides.
type Store interface {
	PokemonStore
	CombatStore
	QuizStore
	Seeder
	Close() error
}

// nowUTC stamps new combats. Truncated to milliseconds, the precision of a
// BSON datetime, so every backend returns what it stored.
var nowUTC = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// prepareCreate validates p and fills the store-assigned fields.
func prepareCreate(p model.Pokemon, id int, assetBase string) (model.Pokemon, error) {
	if err := model.Validate(p); err != nil {
		return model.Pokemon{}, err
	}
	p = p.Clone()
	p.ID = id
	if p.Image == "" {
		p.Image = model.ImageURL(assetBase, id)
	}
	return p, nil
}
