package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	DataDir       string
	AssetBaseURL  string
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - JSON files in DataDir (default)
//	"sqlite" - SQLite database at DataDir/pokedex.db
//	"memory" - In-memory (ephemeral, for testing)
//	"mongo"  - MongoDB database MongoDatabase at MongoURI
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "json", "":
		return NewJsonFileStore(opts.DataDir, opts.AssetBaseURL)
	case "sqlite":
		dbPath := filepath.Join(opts.DataDir, "pokedex.db")
		return NewSqliteStore(dbPath, opts.AssetBaseURL)
	case "memory":
		return NewMemoryStore(opts.AssetBaseURL), nil
	case "mongo":
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase, opts.AssetBaseURL, opts.MongoTimeout)
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory, mongo)", opts.Backend)
	}
}
