package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/pokedex-api/model"
)

func testPokemon(english string) model.Pokemon {
	return model.Pokemon{
		Name: model.Name{"english": english},
		Type: []string{"Normal"},
		Base: &model.Base{HP: 1, Attack: 1, Defense: 1, SpAttack: 1, SpDefense: 1, Speed: 1},
	}
}

func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("")
	_, err := m.Create(ctx, testPokemon("Rattata"))
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	m.persist = func(string, any) error { return diskFull }

	_, err = m.Create(ctx, testPokemon("Raticate"))
	assert.ErrorIs(t, err, diskFull)

	_, err = m.Update(ctx, 1, model.PokemonPatch{Name: model.Name{"english": "Ratty"}})
	assert.ErrorIs(t, err, diskFull)

	assert.ErrorIs(t, m.Delete(ctx, 1), diskFull)

	_, err = m.SaveCombat(ctx, model.Combat{First: model.Pokemon{ID: 1}, Second: model.Pokemon{ID: 1}})
	assert.ErrorIs(t, err, diskFull)

	ps, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "Rattata", ps[0].Name["english"])

	cs, err := m.ListCombats(ctx)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestPersistSeesNextState(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("")
	var seen []string
	m.persist = func(collection string, v any) error {
		seen = append(seen, fmt.Sprintf("%s:%d", collection, len(v.([]model.Pokemon))))
		return nil
	}
	_, err := m.Create(ctx, testPokemon("Pidgey"))
	require.NoError(t, err)
	_, err = m.Create(ctx, testPokemon("Pidgeotto"))
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, 1))
	assert.Equal(t, []string{"pokemons:1", "pokemons:2", "pokemons:1"}, seen)
}

func TestResultLabels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrNotFound, "not_found"},
		{pkgerrors.Wrap(ErrNotFound, "get"), "not_found"},
		{ErrEmptyStore, "empty"},
		{&model.ValidationError{Fields: []string{"type"}}, "invalid"},
		{ErrUnavailable, "error"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, result(tc.err), "%v", tc.err)
	}
}

func TestInstrumentCountsCalls(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))

	s := Instrument(NewMemoryStore(""), "counted")
	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Create(ctx, testPokemon("Spearow"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(operations.WithLabelValues("counted", "get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(operations.WithLabelValues("counted", "create", "ok")))
}

func TestQuestionsAreNotShared(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("")
	seeded := model.QuizQuestion{
		"question": "Which type beats Fire?",
		"answers":  []any{"Water", "Grass"},
		"meta":     map[string]any{"level": "easy"},
	}
	require.NoError(t, m.SeedQuestions(ctx, []model.QuizQuestion{seeded}))
	seeded["question"] = "changed by caller"

	qs, err := m.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	qs[0]["question"] = "changed"
	qs[0]["answers"].([]any)[0] = "Rock"
	qs[0]["meta"].(map[string]any)["level"] = "hard"

	qs, err = m.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QuizQuestion{
		"question": "Which type beats Fire?",
		"answers":  []any{"Water", "Grass"},
		"meta":     map[string]any{"level": "easy"},
	}, qs[0])
}
