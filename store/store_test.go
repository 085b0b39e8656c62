package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/pokedex-api/model"
	"github.com/stevemurr/pokedex-api/store"
)

const assetBase = "http://localhost:3000/assets"

func pokemon(id int, english string, types ...string) model.Pokemon {
	return model.Pokemon{
		ID:    id,
		Name:  model.Name{"english": english, "french": english},
		Type:  types,
		Base:  &model.Base{HP: 45, Attack: 49, Defense: 49, SpAttack: 65, SpDefense: 65, Speed: 45},
		Image: "",
	}
}

func ids(ps []model.Pokemon) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func requireValidation(t *testing.T, err error) *model.ValidationError {
	t.Helper()
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr
}

// runStoreTests runs a common test suite against any Store implementation.
// Subtests share the store and depend on each other's order.
func runStoreTests(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		ps, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, ps)

		_, err = s.MinID(ctx)
		assert.ErrorIs(t, err, store.ErrEmptyStore)
		_, err = s.MaxID(ctx)
		assert.ErrorIs(t, err, store.ErrEmptyStore)

		_, err = s.Get(ctx, 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Create on empty store starts at 1", func(t *testing.T) {
		p, err := s.Create(ctx, pokemon(0, "Bulbasaur", "Grass"))
		require.NoError(t, err)
		assert.Equal(t, 1, p.ID)
		assert.Equal(t, assetBase+"/pokemons/1.png", p.Image)
	})

	t.Run("Seed keeps ids", func(t *testing.T) {
		seeded := pokemon(2, "Ivysaur", "Grass", "Poison")
		seeded.Image = "http://cdn/ivysaur.png"
		require.NoError(t, s.SeedPokemons(ctx, []model.Pokemon{seeded}))

		got, err := s.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, seeded, *got)
	})

	t.Run("Seed rejects invalid records", func(t *testing.T) {
		requireValidation(t, s.SeedPokemons(ctx, []model.Pokemon{{ID: 50}}))
		requireValidation(t, s.SeedPokemons(ctx, []model.Pokemon{pokemon(0, "NoID", "Normal")}))
		ps, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, ids(ps))
	})

	t.Run("Create assigns max plus one", func(t *testing.T) {
		in := pokemon(42, "Venusaur", "Grass")
		in.Image = "http://cdn/venusaur.png"
		created, err := s.Create(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, 3, created.ID, "caller-supplied id is ignored")
		assert.Equal(t, "http://cdn/venusaur.png", created.Image)

		got, err := s.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, *created, *got)
	})

	t.Run("Create rejects missing fields", func(t *testing.T) {
		bad := pokemon(0, "Missingno")
		bad.Base.Speed = 0
		verr := requireValidation(t, func() error { _, err := s.Create(ctx, bad); return err }())
		assert.ElementsMatch(t, []string{"type", "base.Speed"}, verr.Fields)

		ps, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, ps, 3)
	})

	t.Run("Update leaves absent fields unchanged", func(t *testing.T) {
		before, err := s.Get(ctx, 2)
		require.NoError(t, err)

		updated, err := s.Update(ctx, 2, model.PokemonPatch{Name: model.Name{"english": "Ivy", "japanese": "Fushigisou"}})
		require.NoError(t, err)

		assert.Equal(t, model.Name{"english": "Ivy", "french": "Ivysaur", "japanese": "Fushigisou"}, updated.Name)
		assert.Equal(t, before.ID, updated.ID)
		assert.Equal(t, before.Type, updated.Type)
		assert.Equal(t, before.Base, updated.Base)
		assert.Equal(t, before.Image, updated.Image)

		got, err := s.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, *updated, *got)
	})

	t.Run("Update replaces type base and image", func(t *testing.T) {
		img := "http://cdn/new.png"
		base := model.Base{HP: 1, Attack: 2, Defense: 3, SpAttack: 4, SpDefense: 5, Speed: 6}
		updated, err := s.Update(ctx, 3, model.PokemonPatch{Type: []string{"Dragon"}, Base: base.Patch(), Image: &img})
		require.NoError(t, err)
		assert.Equal(t, []string{"Dragon"}, updated.Type)
		assert.Equal(t, base, *updated.Base)
		assert.Equal(t, img, updated.Image)
		assert.Equal(t, "Venusaur", updated.Name["english"])
	})

	t.Run("Update with empty patch returns record", func(t *testing.T) {
		got, err := s.Update(ctx, 1, model.PokemonPatch{})
		require.NoError(t, err)
		assert.Equal(t, "Bulbasaur", got.Name["english"])
	})

	t.Run("Update merges base per stat", func(t *testing.T) {
		before, err := s.Get(ctx, 1)
		require.NoError(t, err)
		hp := before.Base.HP + 5
		updated, err := s.Update(ctx, 1, model.PokemonPatch{Base: &model.BasePatch{HP: &hp}})
		require.NoError(t, err)
		want := *before.Base
		want.HP = hp
		assert.Equal(t, want, *updated.Base)

		got, err := s.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, want, *got.Base)
	})

	t.Run("Update rejects zero stat", func(t *testing.T) {
		zero := 0
		_, err := s.Update(ctx, 1, model.PokemonPatch{Base: &model.BasePatch{Speed: &zero}})
		verr := requireValidation(t, err)
		assert.Equal(t, []string{"base.Speed"}, verr.Fields)
	})

	t.Run("Update rejects unstorable locale", func(t *testing.T) {
		_, err := s.Update(ctx, 1, model.PokemonPatch{Name: model.Name{"en.gb": "x"}})
		verr := requireValidation(t, err)
		assert.Equal(t, []string{"name.en.gb"}, verr.Fields)
	})

	t.Run("Update missing", func(t *testing.T) {
		_, err := s.Update(ctx, 99, model.PokemonPatch{Name: model.Name{"english": "x"}})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Delete keeps other ids", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, 1))
		ps, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, ids(ps))

		_, err = s.Get(ctx, 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Delete missing", func(t *testing.T) {
		assert.ErrorIs(t, s.Delete(ctx, 1), store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, 99), store.ErrNotFound)
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := s.Get(ctx, 99)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("MinID and MaxID", func(t *testing.T) {
		min, err := s.MinID(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, min)
		max, err := s.MaxID(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, max)
	})

	t.Run("Create after delete", func(t *testing.T) {
		created, err := s.Create(ctx, pokemon(0, "Charmander", "Fire"))
		require.NoError(t, err)
		assert.Equal(t, 4, created.ID)
	})

	// Combats
	var first, second, third *model.Combat

	t.Run("VersusImage without combats", func(t *testing.T) {
		_, err := s.VersusImage(ctx)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SaveCombat rejects snapshots without id", func(t *testing.T) {
		_, err := s.SaveCombat(ctx, model.Combat{First: pokemon(2, "Ivysaur", "Grass")})
		requireValidation(t, err)
	})

	t.Run("SaveCombat", func(t *testing.T) {
		var err error
		first, err = s.SaveCombat(ctx, model.Combat{
			First: pokemon(2, "Ivysaur", "Grass"), Second: pokemon(3, "Venusaur", "Grass"), Versus: "a.png",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, first.ID)
		assert.False(t, first.CreatedAt.IsZero())

		second, err = s.SaveCombat(ctx, model.Combat{
			First: pokemon(2, "Ivysaur", "Grass"), Second: pokemon(4, "Charmander", "Fire"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, second.ID)

		v, err := s.VersusImage(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a.png", v, "combats without artwork are skipped")

		third, err = s.SaveCombat(ctx, model.Combat{
			First: pokemon(3, "Venusaur", "Grass"), Second: pokemon(4, "Charmander", "Fire"), Versus: "b.png",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, third.ID)

		v, err = s.VersusImage(ctx)
		require.NoError(t, err)
		assert.Equal(t, "b.png", v)
	})

	hpOf := func(t *testing.T) map[int][2]int {
		t.Helper()
		cs, err := s.ListCombats(ctx)
		require.NoError(t, err)
		out := make(map[int][2]int, len(cs))
		for _, c := range cs {
			out[c.ID] = [2]int{c.First.Base.HP, c.Second.Base.HP}
		}
		return out
	}

	t.Run("ApplyDamage without combat id hits the latest combat only", func(t *testing.T) {
		require.NoError(t, s.ApplyDamage(ctx, 0, 2, 10))
		assert.Equal(t, map[int][2]int{
			first.ID:  {45, 45},
			second.ID: {10, 45},
			third.ID:  {45, 45},
		}, hpOf(t))
	})

	t.Run("ApplyDamage scoped to a combat", func(t *testing.T) {
		require.NoError(t, s.ApplyDamage(ctx, first.ID, 3, 7))
		assert.Equal(t, map[int][2]int{
			first.ID:  {45, 7},
			second.ID: {10, 45},
			third.ID:  {45, 45},
		}, hpOf(t))
	})

	t.Run("ApplyDamage misses", func(t *testing.T) {
		assert.ErrorIs(t, s.ApplyDamage(ctx, first.ID, 99, 1), store.ErrNotFound)
		assert.ErrorIs(t, s.ApplyDamage(ctx, 999, 2, 1), store.ErrNotFound)
		assert.ErrorIs(t, s.ApplyDamage(ctx, 0, 77, 1), store.ErrNotFound)
	})

	// Quiz
	t.Run("ListQuestions", func(t *testing.T) {
		qs, err := s.ListQuestions(ctx)
		require.NoError(t, err)
		assert.Empty(t, qs)

		require.NoError(t, s.SeedQuestions(ctx, []model.QuizQuestion{
			{"question": "Which type is Bulbasaur?", "answers": []any{"Grass", "Fire"}, "correct": "Grass"},
			{"question": "Who evolves into Venusaur?", "correct": "Ivysaur"},
		}))
		qs, err = s.ListQuestions(ctx)
		require.NoError(t, err)
		require.Len(t, qs, 2)
		assert.Equal(t, "Which type is Bulbasaur?", qs[0]["question"])
		assert.Equal(t, []any{"Grass", "Fire"}, qs[0]["answers"])
		assert.Equal(t, "Ivysaur", qs[1]["correct"])
	})

	t.Run("Close makes the store unavailable", func(t *testing.T) {
		require.NoError(t, s.Close())
		_, err := s.List(ctx)
		assert.ErrorIs(t, err, store.ErrUnavailable)
	})
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemoryStore(assetBase)
	runStoreTests(t, s)
}

func TestJsonFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewJsonFileStore(dir, assetBase)
	require.NoError(t, err)
	runStoreTests(t, s)
}

func TestSqliteStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := store.NewSqliteStore(dbPath, assetBase)
	require.NoError(t, err)
	defer s.Close()
	runStoreTests(t, s)
}

func TestSqliteStoreCorruptQuestion(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSqliteStore(dbPath, assetBase)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SeedQuestions(ctx, []model.QuizQuestion{{"question": "Q1"}}))

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("INSERT INTO quiz_questions (data) VALUES (?)", "{not json")
	require.NoError(t, err)

	qs, err := s.ListQuestions(ctx)
	assert.Error(t, err)
	assert.Nil(t, qs)
}

func TestInstrumentedStore(t *testing.T) {
	runStoreTests(t, store.Instrument(store.NewMemoryStore(assetBase), "memory"))
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
	}{
		{"json"},
		{"sqlite"},
		{"memory"},
		{""},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			s, err := store.New(context.Background(), store.Options{
				Backend: tc.backend,
				DataDir: filepath.Join(dir, tc.backend),
			})
			require.NoError(t, err)
			s.Close()
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := store.New(context.Background(), store.Options{Backend: "redis", DataDir: dir})
		assert.Error(t, err)
	})
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	backends := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return store.NewMemoryStore(assetBase) },
		"json": func(t *testing.T) store.Store {
			s, err := store.NewJsonFileStore(t.TempDir(), assetBase)
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) store.Store {
			s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "c.db"), assetBase)
			require.NoError(t, err)
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Create(context.Background(), pokemon(0, "Eevee", "Normal"))
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}
			ps, err := s.List(context.Background())
			require.NoError(t, err)
			got := ids(ps)
			sort.Ints(got)
			want := make([]int, n)
			for i := range want {
				want[i] = i + 1
			}
			assert.Equal(t, want, got)
		})
	}
}
