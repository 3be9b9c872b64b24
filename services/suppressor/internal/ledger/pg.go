package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
)

// NewPostgresStore opens a Postgres-backed run ledger at dsn, for
// deployments that centralize run history across multiple engine
// instances instead of each keeping its own SQLite file -- same Store
// interface, same schema, positional placeholders only differ ($N
// instead of ?).
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping postgres: %w", err)
	}

	s := &sqlStore{db: db, placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}
	return s, nil
}
