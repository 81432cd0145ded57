package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Search finds nodes whose description or transcript chunks match the query.
// Terms are matched with FTS5; when that finds nothing, a substring match on
// descriptions and chunk text is tried.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}

	if q := ftsQuery(p.Query); q != "" {
		results, err := s.searchFTS(ctx, p, q)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	results, err := s.searchLike(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// ftsQuery quotes every term so user input is never parsed as FTS syntax.
// Terms without a letter or digit are dropped.
func ftsQuery(q string) string {
	var terms []string
	for _, t := range strings.Fields(q) {
		t = strings.ReplaceAll(t, `"`, "")
		if !strings.ContainsFunc(t, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		terms = append(terms, `"`+t+`"`)
	}
	return strings.Join(terms, " ")
}

func (s *SQLiteStore) filters(p SearchParams) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if p.Persona != "" {
		where = append(where, "n.persona = ?")
		args = append(args, p.Persona)
	}
	if p.Type != "" {
		where = append(where, "n.type = ?")
		args = append(args, string(p.Type))
	}
	return where, args
}

func (s *SQLiteStore) searchFTS(ctx context.Context, p SearchParams, match string) ([]SearchResult, error) {
	where, args := s.filters(p)
	where = append([]string{"chunks_fts MATCH ?"}, where...)
	args = append([]interface{}{match}, args...)

	query := fmt.Sprintf(`
		SELECT n.persona, %s, c.text
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN nodes n ON n.persona = c.persona AND n.node_id = c.node_id
		WHERE %s
		ORDER BY bm25(chunks_fts), n.persona, n.node_count
		LIMIT ?`, prefixed("n", nodeColumns), strings.Join(where, " AND "))
	args = append(args, p.Limit*4)
	return s.collect(ctx, query, args, p.Limit)
}

func (s *SQLiteStore) searchLike(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	where, args := s.filters(p)
	like := "%" + p.Query + "%"
	where = append(where, "(n.description LIKE ? OR c.text LIKE ?)")
	args = append(args, like, like)

	query := fmt.Sprintf(`
		SELECT n.persona, %s, COALESCE(c.text, '')
		FROM nodes n
		LEFT JOIN chunks c ON c.persona = n.persona AND c.node_id = n.node_id
		WHERE %s
		ORDER BY n.persona, n.node_count DESC
		LIMIT ?`, prefixed("n", nodeColumns), strings.Join(where, " AND "))
	args = append(args, p.Limit*4)
	return s.collect(ctx, query, args, p.Limit)
}

// collect scans rows of (persona, node columns, chunk text), keeping the
// first match per node.
func (s *SQLiteStore) collect(ctx context.Context, query string, args []interface{}, limit int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	seen := map[string]bool{}
	for rows.Next() {
		var persona, chunk string
		n, err := scanNode(prefixScanner{rows, &persona}, &chunk)
		if err != nil {
			return nil, err
		}
		key := persona + "/" + n.NodeID
		if seen[key] {
			continue
		}
		seen[key] = true
		results = append(results, SearchResult{Persona: persona, Node: n, MatchChunk: chunk})
		if len(results) == limit {
			break
		}
	}
	return results, rows.Err()
}

// prefixScanner scans a leading column into first before the node columns.
type prefixScanner struct {
	row   scanner
	first *string
}

func (p prefixScanner) Scan(dest ...interface{}) error {
	return p.row.Scan(append([]interface{}{p.first}, dest...)...)
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
