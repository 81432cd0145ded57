package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/persona-memory/internal/chunker"
	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS personas (
		name        TEXT PRIMARY KEY,
		scratch     TEXT NOT NULL,
		saved_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		persona       TEXT NOT NULL REFERENCES personas(name),
		node_id       TEXT NOT NULL,
		node_count    INTEGER NOT NULL,
		type_count    INTEGER NOT NULL,
		type          TEXT NOT NULL,
		depth         INTEGER NOT NULL DEFAULT 0,
		created       TEXT NOT NULL,
		last_accessed TEXT NOT NULL,
		expiration    TEXT,
		subject       TEXT NOT NULL DEFAULT '',
		predicate     TEXT NOT NULL DEFAULT '',
		object        TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL,
		embedding_key TEXT NOT NULL,
		poignancy     REAL NOT NULL DEFAULT 0,
		keywords      TEXT,
		filling_kind  TEXT NOT NULL,
		filling       TEXT NOT NULL,
		PRIMARY KEY (persona, node_id)
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(persona, type);
	CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(filling_kind);

	CREATE TABLE IF NOT EXISTS node_evidence (
		persona     TEXT NOT NULL,
		node_id     TEXT NOT NULL,
		evidence_id TEXT NOT NULL,
		PRIMARY KEY (persona, node_id, evidence_id),
		FOREIGN KEY (persona, node_id) REFERENCES nodes(persona, node_id)
	);
	CREATE INDEX IF NOT EXISTS idx_evidence_target ON node_evidence(persona, evidence_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		persona TEXT NOT NULL REFERENCES personas(name),
		key     TEXT NOT NULL,
		vector  TEXT NOT NULL,
		PRIMARY KEY (persona, key)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		persona     TEXT NOT NULL,
		node_id     TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		text        TEXT NOT NULL,
		start_line  INTEGER,
		end_line    INTEGER,
		FOREIGN KEY (persona, node_id) REFERENCES nodes(persona, node_id)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_node ON chunks(persona, node_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content=chunks,
		content_rowid=rowid
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}
	return nil
}

// SavePersona writes p under its own name in one transaction, replacing any
// previous save.
func (s *SQLiteStore) SavePersona(ctx context.Context, p *persona.Persona) (*PersonaInfo, error) {
	return s.SavePersonaAs(ctx, p.Name(), p)
}

// SavePersonaAs writes p under name, which may differ from the persona's own
// name. Ablated copies are saved this way next to their source.
func (s *SQLiteStore) SavePersonaAs(ctx context.Context, name string, p *persona.Persona) (*PersonaInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("save persona: empty name")
	}
	now := time.Now().UTC()

	scratch, err := json.Marshal(p.Scratch)
	if err != nil {
		return nil, fmt.Errorf("encode scratch: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := deletePersonaRows(ctx, tx, name); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO personas (name, scratch, saved_at) VALUES (?, ?, ?)`,
		name, string(scratch), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert persona: %w", err)
	}

	info := &PersonaInfo{Name: name, Persona: p.Name(), SavedAt: now}
	for _, n := range p.Memory.Nodes() {
		if err := insertNode(ctx, tx, name, n); err != nil {
			return nil, err
		}
		for _, ev := range n.Filling.Evidence {
			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO node_evidence (persona, node_id, evidence_id) VALUES (?, ?, ?)`,
				name, n.NodeID, ev)
			if err != nil {
				return nil, fmt.Errorf("insert evidence: %w", err)
			}
		}
		for i, c := range chunker.Node(n, chunker.DefaultOptions()) {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO chunks (id, persona, node_id, seq, text, start_line, end_line)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				s.newID(), name, n.NodeID, i, c.Text, c.StartLine, c.EndLine)
			if err != nil {
				return nil, fmt.Errorf("insert chunk: %w", err)
			}
			info.Chunks++
		}

		info.Nodes++
		switch n.Type {
		case model.TypeEvent:
			info.Events++
		case model.TypeThought:
			info.Thoughts++
		case model.TypeChat:
			info.Chats++
		}
	}

	for key, vec := range p.Memory.Embeddings() {
		b, err := json.Marshal(vec)
		if err != nil {
			return nil, fmt.Errorf("encode embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO embeddings (persona, key, vector) VALUES (?, ?, ?)`, name, key, string(b))
		if err != nil {
			return nil, fmt.Errorf("insert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return info, nil
}

func insertNode(ctx context.Context, tx *sql.Tx, name string, n *model.Node) error {
	var keywords *string
	if len(n.Keywords) > 0 {
		b, _ := json.Marshal(n.Keywords)
		k := string(b)
		keywords = &k
	}
	filling, err := json.Marshal(n.Filling)
	if err != nil {
		return fmt.Errorf("encode filling: %w", err)
	}
	var expiration *string
	if n.Expiration != nil {
		e := n.Expiration.UTC().Format(time.RFC3339Nano)
		expiration = &e
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO nodes (persona, node_id, node_count, type_count, type, depth, created, last_accessed,
		                    expiration, subject, predicate, object, description, embedding_key, poignancy,
		                    keywords, filling_kind, filling)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, n.NodeID, n.NodeCount, n.TypeCount, string(n.Type), n.Depth,
		n.Created.UTC().Format(time.RFC3339Nano), n.LastAccessed.UTC().Format(time.RFC3339Nano),
		expiration, n.Subject, n.Predicate, n.Object, n.Description, n.EmbeddingKey, n.Poignancy,
		keywords, string(n.Filling.Kind), string(filling))
	if err != nil {
		return fmt.Errorf("insert node %s: %w", n.NodeID, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// deletePersonaRows removes every row saved for name, children first.
func deletePersonaRows(ctx context.Context, db execer, name string) error {
	for _, q := range []string{
		`DELETE FROM chunks WHERE persona = ?`,
		`DELETE FROM node_evidence WHERE persona = ?`,
		`DELETE FROM embeddings WHERE persona = ?`,
		`DELETE FROM nodes WHERE persona = ?`,
		`DELETE FROM personas WHERE name = ?`,
	} {
		if _, err := db.ExecContext(ctx, q, name); err != nil {
			return fmt.Errorf("delete persona %s: %w", name, err)
		}
	}
	return nil
}

// LoadPersona rebuilds a saved persona, indexes included.
func (s *SQLiteStore) LoadPersona(ctx context.Context, name string) (*persona.Persona, error) {
	var scratchJSON string
	err := s.db.QueryRowContext(ctx, `SELECT scratch FROM personas WHERE name = ?`, name).Scan(&scratchJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var scratch model.Scratch
	if err := json.Unmarshal([]byte(scratchJSON), &scratch); err != nil {
		return nil, fmt.Errorf("decode scratch: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE persona = ? ORDER BY node_count`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	embeddings, err := s.loadEmbeddings(ctx, name)
	if err != nil {
		return nil, err
	}

	mem, err := memory.Restore(nodes, embeddings)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", name, err)
	}
	return &persona.Persona{Scratch: &scratch, Memory: mem}, nil
}

func (s *SQLiteStore) loadEmbeddings(ctx context.Context, name string) (map[string]embedding.Vector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, vector FROM embeddings WHERE persona = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]embedding.Vector{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var vec embedding.Vector
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding %q: %w", key, err)
		}
		out[key] = vec
	}
	return out, rows.Err()
}

// ListPersonas lists saved personas with their node counts.
func (s *SQLiteStore) ListPersonas(ctx context.Context) ([]PersonaInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name, COALESCE(json_extract(p.scratch, '$.name'), ''), p.saved_at,
		       COUNT(n.node_id),
		       COALESCE(SUM(n.type = 'event'), 0),
		       COALESCE(SUM(n.type = 'thought'), 0),
		       COALESCE(SUM(n.type = 'chat'), 0),
		       (SELECT COUNT(*) FROM chunks c WHERE c.persona = p.name)
		FROM personas p
		LEFT JOIN nodes n ON n.persona = p.name
		GROUP BY p.name
		ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PersonaInfo
	for rows.Next() {
		var info PersonaInfo
		var savedAt string
		if err := rows.Scan(&info.Name, &info.Persona, &savedAt, &info.Nodes, &info.Events, &info.Thoughts, &info.Chats, &info.Chunks); err != nil {
			return nil, err
		}
		info.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeletePersona removes a persona and everything saved with it.
func (s *SQLiteStore) DeletePersona(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM personas WHERE name = ?`, name).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrPersonaNotFound, name)
	}
	if err := deletePersonaRows(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const nodeColumns = `node_id, node_count, type_count, type, depth, created, last_accessed, expiration,
	subject, predicate, object, description, embedding_key, poignancy, keywords, filling`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row scanner, extra ...interface{}) (*model.Node, error) {
	var n model.Node
	var typ, created, lastAccessed, filling string
	var expiration, keywords sql.NullString

	dest := []interface{}{
		&n.NodeID, &n.NodeCount, &n.TypeCount, &typ, &n.Depth, &created, &lastAccessed, &expiration,
		&n.Subject, &n.Predicate, &n.Object, &n.Description, &n.EmbeddingKey, &n.Poignancy, &keywords, &filling,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	n.Type = model.NodeType(typ)
	n.Created, _ = time.Parse(time.RFC3339Nano, created)
	n.LastAccessed, _ = time.Parse(time.RFC3339Nano, lastAccessed)
	if expiration.Valid {
		t, _ := time.Parse(time.RFC3339Nano, expiration.String)
		n.Expiration = &t
	}
	if keywords.Valid {
		json.Unmarshal([]byte(keywords.String), &n.Keywords)
	}
	if err := json.Unmarshal([]byte(filling), &n.Filling); err != nil {
		return nil, fmt.Errorf("decode filling of %s: %w", n.NodeID, err)
	}
	return &n, nil
}
