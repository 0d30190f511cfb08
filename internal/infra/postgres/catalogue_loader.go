package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"mockexam-service/internal/domain"
)

// CatalogueLoader loads test papers stored as JSONB rows in Postgres.
type CatalogueLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogueLoader(pool *pgxpool.Pool) *CatalogueLoader {
	return &CatalogueLoader{pool: pool}
}

func (l *CatalogueLoader) LoadCatalogue(ctx context.Context) ([]domain.Test, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM tests ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	var tests []domain.Test
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan test row: %w", err)
		}
		var test domain.Test
		if err := json.Unmarshal(raw, &test); err != nil {
			return nil, fmt.Errorf("unmarshal test: %w", err)
		}
		tests = append(tests, test)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return tests, nil
}
