// Command seed imports a pokemons file, and optionally a quiz file, into the
// configured store backend.
//
// Usage:
//
//	seed -pokemons data/pokemons.json [-quiz data/quizz.json]
//
// The backend is chosen with the same configuration as the server
// (POKEDEX_CONFIG, STORE_BACKEND, DATA_DIR, MONGO_URI, ...).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stevemurr/pokedex-api/config"
	"github.com/stevemurr/pokedex-api/model"
	"github.com/stevemurr/pokedex-api/schema"
	"github.com/stevemurr/pokedex-api/store"
)

func main() {
	pokemonsPath := flag.String("pokemons", "", "pokemons JSON file, either layout")
	quizPath := flag.String("quiz", "", "quiz questions JSON file")
	flag.Parse()

	if *pokemonsPath == "" && *quizPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()
	s, err := store.New(ctx, cfg.StoreOptions())
	if err != nil {
		log.Fatalf("failed to create store (backend=%s): %v", cfg.StoreBackend, err)
	}
	defer s.Close()

	if err := run(ctx, s, *pokemonsPath, *quizPath); err != nil {
		log.Errorf("seed failed: %v", err)
		s.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, s store.Seeder, pokemonsPath, quizPath string) error {
	if pokemonsPath != "" {
		data, err := os.ReadFile(pokemonsPath)
		if err != nil {
			return err
		}
		ps, legacy, err := schema.DecodePokemons(data)
		if err != nil {
			return errors.Wrapf(err, "decode %s", pokemonsPath)
		}
		if err := s.SeedPokemons(ctx, ps); err != nil {
			return err
		}
		if legacy > 0 {
			log.Infof("migrated %d legacy records from %s", legacy, pokemonsPath)
		}
		log.Infof("seeded %d pokemons from %s", len(ps), pokemonsPath)
	}
	if quizPath != "" {
		data, err := os.ReadFile(quizPath)
		if err != nil {
			return err
		}
		var qs []model.QuizQuestion
		if err := json.Unmarshal(data, &qs); err != nil {
			return errors.Wrapf(err, "decode %s", quizPath)
		}
		if err := s.SeedQuestions(ctx, qs); err != nil {
			return err
		}
		log.Infof("seeded %d quiz questions from %s", len(qs), quizPath)
	}
	return nil
}
