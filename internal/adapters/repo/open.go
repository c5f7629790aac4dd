package repo

import (
	"context"
	"fmt"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/db"
)

// Store — журнал с чтением для аудита.
type Store interface {
	domain.Ledger
	domain.DecisionReader
}

// OpenOptions выбирает бэкенд хранилища.
type OpenOptions struct {
	Backend    string
	Dir        string
	SQLitePath string
	PGDSN      string
	Namespace  string
}

// Open открывает хранилище выбранного бэкенда, применяя миграции.
// Возвращённая функция освобождает ресурсы.
func Open(ctx context.Context, opts OpenOptions) (Store, func(), error) {
	switch opts.Backend {
	case "", "file":
		store, err := OpenFile(opts.Dir, opts.Namespace)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "sqlite":
		conn, err := db.OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if _, err := db.MigrateSQLite(conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return NewSQLite(conn, opts.Namespace), func() { _ = conn.Close() }, nil
	case "postgres":
		pool, err := db.Connect(ctx, opts.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if _, err := db.MigratePostgres(pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewPostgres(pool, opts.Namespace), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
