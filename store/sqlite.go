package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/stevemurr/pokedex-api/model"
)

// SqliteStore stores all collections in a single SQLite database, one JSON
// document per row.
//
// Tables:
//
//	pokemons(id, data)                    PRIMARY KEY (id)
//	combats(id, created_at, data)         PRIMARY KEY (id), created_at in unix nanos
//	quiz_questions(seq, data)             PRIMARY KEY (seq) AUTOINCREMENT
type SqliteStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	assetBase string
	closed    bool
}

func NewSqliteStore(dbPath, assetBase string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS pokemons (
			id INTEGER PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS combats (
			id INTEGER PRIMARY KEY,
			created_at INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_questions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			data TEXT NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "init sqlite schema")
		}
	}
	return &SqliteStore{db: db, assetBase: assetBase}, nil
}

func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// inTx runs fn in a transaction while holding the write lock.
func (s *SqliteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func (s *SqliteStore) List(ctx context.Context) ([]model.Pokemon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrUnavailable
	}
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM pokemons ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list pokemons")
	}
	defer rows.Close()
	result := []model.Pokemon{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var p model.Pokemon
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, errors.Wrap(err, "decode pokemon")
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SqliteStore) Get(ctx context.Context, id int) (*model.Pokemon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrUnavailable
	}
	return getPokemon(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPokemon(ctx context.Context, q queryRower, id int) (*model.Pokemon, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT data FROM pokemons WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get pokemon %d", id)
	}
	var p model.Pokemon
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, errors.Wrapf(err, "decode pokemon %d", id)
	}
	return &p, nil
}

func putPokemon(ctx context.Context, tx *sql.Tx, p model.Pokemon) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pokemons (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		p.ID, string(b),
	)
	return errors.Wrapf(err, "put pokemon %d", p.ID)
}

func (s *SqliteStore) Create(ctx context.Context, p model.Pokemon) (*model.Pokemon, error) {
	var created model.Pokemon
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM pokemons").Scan(&next); err != nil {
			return errors.Wrap(err, "next pokemon id")
		}
		var err error
		if created, err = prepareCreate(p, next, s.assetBase); err != nil {
			return err
		}
		return putPokemon(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *SqliteStore) Update(ctx context.Context, id int, patch model.PokemonPatch) (*model.Pokemon, error) {
	if err := model.ValidatePatch(patch); err != nil {
		return nil, err
	}
	var updated *model.Pokemon
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getPokemon(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(patch)
		updated = p
		return putPokemon(ctx, tx, *p)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SqliteStore) Delete(ctx context.Context, id int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM pokemons WHERE id = ?", id)
		if err != nil {
			return errors.Wrapf(err, "delete pokemon %d", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrapf(err, "delete pokemon %d", id)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SqliteStore) MinID(ctx context.Context) (int, error) {
	return s.bound(ctx, "SELECT MIN(id) FROM pokemons")
}

func (s *SqliteStore) MaxID(ctx context.Context) (int, error) {
	return s.bound(ctx, "SELECT MAX(id) FROM pokemons")
}

func (s *SqliteStore) bound(ctx context.Context, query string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrUnavailable
	}
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "id bound")
	}
	if !id.Valid {
		return 0, ErrEmptyStore
	}
	return int(id.Int64), nil
}

func putCombat(ctx context.Context, tx *sql.Tx, c model.Combat) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO combats (id, created_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		c.ID, c.CreatedAt.UnixNano(), string(b),
	)
	return errors.Wrapf(err, "put combat %d", c.ID)
}

func (s *SqliteStore) ListCombats(ctx context.Context) ([]model.Combat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrUnavailable
	}
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM combats ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list combats")
	}
	defer rows.Close()
	result := []model.Combat{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var c model.Combat
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, errors.Wrap(err, "decode combat")
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *SqliteStore) SaveCombat(ctx context.Context, c model.Combat) (*model.Combat, error) {
	if err := model.ValidateCombat(c); err != nil {
		return nil, err
	}
	c = c.Clone()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM combats").Scan(&c.ID); err != nil {
			return errors.Wrap(err, "next combat id")
		}
		c.CreatedAt = nowUTC()
		return putCombat(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SqliteStore) ApplyDamage(ctx context.Context, combatID, pokemonID, hp int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var row *sql.Row
		if combatID > 0 {
			row = tx.QueryRowContext(ctx, "SELECT data FROM combats WHERE id = ?", combatID)
		} else {
			row = tx.QueryRowContext(ctx,
				`SELECT data FROM combats
				 WHERE json_extract(data, '$.first.id') = ? OR json_extract(data, '$.second.id') = ?
				 ORDER BY created_at DESC, id DESC LIMIT 1`,
				pokemonID, pokemonID,
			)
		}
		var raw string
		if err := row.Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return errors.Wrap(err, "find combat")
		}
		var c model.Combat
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return errors.Wrap(err, "decode combat")
		}
		if !c.SetHP(pokemonID, hp) {
			return ErrNotFound
		}
		return putCombat(ctx, tx, c)
	})
}

func (s *SqliteStore) VersusImage(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrUnavailable
	}
	var versus string
	err := s.db.QueryRowContext(ctx,
		`SELECT json_extract(data, '$.versus') FROM combats
		 WHERE COALESCE(json_extract(data, '$.versus'), '') != ''
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&versus)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "versus image")
	}
	return versus, nil
}

func (s *SqliteStore) ListQuestions(ctx context.Context) ([]model.QuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrUnavailable
	}
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM quiz_questions ORDER BY seq")
	if err != nil {
		return nil, errors.Wrap(err, "list questions")
	}
	defer rows.Close()
	result := []model.QuizQuestion{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var q model.QuizQuestion
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, errors.Wrap(err, "decode question")
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

func (s *SqliteStore) SeedPokemons(ctx context.Context, ps []model.Pokemon) error {
	for _, p := range ps {
		if p.ID <= 0 {
			return &model.ValidationError{Fields: []string{"id"}}
		}
		if err := model.Validate(p); err != nil {
			return errors.Wrapf(err, "pokemon %d", p.ID)
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range ps {
			if err := putPokemon(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SqliteStore) SeedQuestions(ctx context.Context, qs []model.QuizQuestion) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range qs {
			b, err := json.Marshal(q)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO quiz_questions (data) VALUES (?)", string(b)); err != nil {
				return errors.Wrap(err, "insert question")
			}
		}
		return nil
	})
}

var _ Store = (*SqliteStore)(nil)
