package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/stevemurr/pokedex-api/schema"
)

// JsonFileStore holds every collection in memory and rewrites the matching
// JSON file on each mutation.
//
// Layout:
//
//	data_dir/
//	  pokemons.json   # catalogue, either schema layout is accepted on load
//	  combats.json    # saved combats
//	  quizz.json      # quiz questions
//
// Files are loaded once, at construction. Writes go to a temporary file in
// data_dir which is then renamed over the target.
type JsonFileStore struct {
	*MemoryStore
	dir string
}

func NewJsonFileStore(dir, assetBase string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &JsonFileStore{MemoryStore: NewMemoryStore(assetBase), dir: dir}

	data, err := s.readFile(collPokemons)
	if err != nil {
		return nil, err
	}
	if data != nil {
		var legacy int
		if s.pokemons, legacy, err = schema.DecodePokemons(data); err != nil {
			return nil, errors.Wrapf(err, "load %s", s.path(collPokemons))
		}
		if legacy > 0 {
			log.Infof("migrated %d legacy records from %s", legacy, s.path(collPokemons))
		}
	}
	if err := s.loadInto(collCombats, &s.combats); err != nil {
		return nil, err
	}
	if err := s.loadInto(collQuestions, &s.questions); err != nil {
		return nil, err
	}

	s.persist = s.saveFile
	return s, nil
}

func (s *JsonFileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// readFile returns nil data when the file does not exist yet.
func (s *JsonFileStore) readFile(collection string) ([]byte, error) {
	data, err := os.ReadFile(s.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *JsonFileStore) loadInto(collection string, v any) error {
	data, err := s.readFile(collection)
	if err != nil || data == nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, v), "load %s", s.path(collection))
}

func (s *JsonFileStore) saveFile(collection string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(collection), b)
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var _ Store = (*JsonFileStore)(nil)
var _ Store = (*MemoryStore)(nil)

