package store

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stevemurr/pokedex-api/model"
)

var operations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pokedex_store_operations_total",
	Help: "store operations by backend, operation and result",
}, []string{"backend", "op", "result"})

// RegisterMetrics registers the store collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(operations)
}

func result(err error) string {
	var verr *model.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrEmptyStore):
		return "empty"
	case errors.As(err, &verr):
		return "invalid"
	}
	return "error"
}

// Instrument wraps s so that every call is counted.
func Instrument(s Store, backend string) Store {
	return &instrumented{next: s, backend: backend}
}

type instrumented struct {
	next    Store
	backend string
}

func (i *instrumented) observe(op string, err error) {
	operations.WithLabelValues(i.backend, op, result(err)).Inc()
}

func (i *instrumented) List(ctx context.Context) ([]model.Pokemon, error) {
	ps, err := i.next.List(ctx)
	i.observe("list", err)
	return ps, err
}

func (i *instrumented) Get(ctx context.Context, id int) (*model.Pokemon, error) {
	p, err := i.next.Get(ctx, id)
	i.observe("get", err)
	return p, err
}

func (i *instrumented) Create(ctx context.Context, p model.Pokemon) (*model.Pokemon, error) {
	created, err := i.next.Create(ctx, p)
	i.observe("create", err)
	return created, err
}

func (i *instrumented) Update(ctx context.Context, id int, patch model.PokemonPatch) (*model.Pokemon, error) {
	p, err := i.next.Update(ctx, id, patch)
	i.observe("update", err)
	return p, err
}

func (i *instrumented) Delete(ctx context.Context, id int) error {
	err := i.next.Delete(ctx, id)
	i.observe("delete", err)
	return err
}

func (i *instrumented) MinID(ctx context.Context) (int, error) {
	id, err := i.next.MinID(ctx)
	i.observe("min_id", err)
	return id, err
}

func (i *instrumented) MaxID(ctx context.Context) (int, error) {
	id, err := i.next.MaxID(ctx)
	i.observe("max_id", err)
	return id, err
}

func (i *instrumented) ListCombats(ctx context.Context) ([]model.Combat, error) {
	cs, err := i.next.ListCombats(ctx)
	i.observe("list_combats", err)
	return cs, err
}

func (i *instrumented) SaveCombat(ctx context.Context, c model.Combat) (*model.Combat, error) {
	saved, err := i.next.SaveCombat(ctx, c)
	i.observe("save_combat", err)
	return saved, err
}

func (i *instrumented) ApplyDamage(ctx context.Context, combatID, pokemonID, hp int) error {
	err := i.next.ApplyDamage(ctx, combatID, pokemonID, hp)
	i.observe("apply_damage", err)
	return err
}

func (i *instrumented) VersusImage(ctx context.Context) (string, error) {
	v, err := i.next.VersusImage(ctx)
	i.observe("versus_image", err)
	return v, err
}

func (i *instrumented) ListQuestions(ctx context.Context) ([]model.QuizQuestion, error) {
	qs, err := i.next.ListQuestions(ctx)
	i.observe("list_questions", err)
	return qs, err
}

func (i *instrumented) SeedPokemons(ctx context.Context, ps []model.Pokemon) error {
	err := i.next.SeedPokemons(ctx, ps)
	i.observe("seed_pokemons", err)
	return err
}

func (i *instrumented) SeedQuestions(ctx context.Context, qs []model.QuizQuestion) error {
	err := i.next.SeedQuestions(ctx, qs)
	i.observe("seed_questions", err)
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
