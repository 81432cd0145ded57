package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string         `json:"db_path"`
	DBSizeBytes int64          `json:"db_size_bytes"`
	Personas    int            `json:"personas"`
	TotalNodes  int            `json:"total_nodes"`
	TotalChunks int            `json:"total_chunks"`
	Embeddings  int            `json:"embeddings"`
	ByType      map[string]int `json:"by_type"`
	ByFilling   map[string]int `json:"by_filling"`
	PerPersona  []PersonaInfo  `json:"per_persona"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, ByType: map[string]int{}, ByFilling: map[string]int{}}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM personas`).Scan(&st.Personas)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&st.TotalNodes)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.TotalChunks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&st.Embeddings)

	if err := s.countBy(ctx, `SELECT type, COUNT(*) FROM nodes GROUP BY type`, st.ByType); err != nil {
		return st, err
	}
	if err := s.countBy(ctx, `SELECT filling_kind, COUNT(*) FROM nodes GROUP BY filling_kind`, st.ByFilling); err != nil {
		return st, err
	}

	per, err := s.ListPersonas(ctx)
	if err != nil {
		return st, err
	}
	st.PerPersona = per
	return st, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		into[k] = n
	}
	return rows.Err()
}
