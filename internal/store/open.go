package store

import (
	"context"
	"fmt"

	"github.com/ritgame/apiserver/config"
	"github.com/ritgame/apiserver/internal/db"
)

// Open connects to the configured backing engine. Connection failures are
// reported immediately with ErrStorageUnavailable.
func Open(ctx context.Context, cfg config.Config) (UserStore, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres, "":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, newError("open", ErrStorageUnavailable, err)
		}
		return NewPostgresUserStore(conn), nil
	case config.StoreBackendSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, newError("open", ErrStorageUnavailable, err)
		}
		s, err := NewSQLiteUserStore(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, newError("open", ErrStorageUnavailable, err)
		}
		return s, nil
	case config.StoreBackendBuntDB:
		s, err := OpenBuntUserStore(cfg.BuntDB.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreBackendFirestore:
		s, err := OpenFirestoreUserStore(ctx, cfg.Firestore)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, newError("open", ErrInvalidArgument, fmt.Errorf("unknown store backend %q", cfg.Store.Backend))
	}
}
