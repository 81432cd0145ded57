package store

import (
	"context"
	"fmt"
)

// Evidence lists the citations of a node in both directions.
type Evidence struct {
	Persona string   `json:"persona"`
	NodeID  string   `json:"node_id"`
	Cites   []string `json:"cites"`
	CitedBy []string `json:"cited_by"`
}

// Evidence returns the nodes nodeID cites and the nodes citing it.
func (s *SQLiteStore) Evidence(ctx context.Context, persona, nodeID string) (*Evidence, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE persona = ? AND node_id = ?`, persona, nodeID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("node not found: %s/%s", persona, nodeID)
	}

	ev := &Evidence{Persona: persona, NodeID: nodeID, Cites: []string{}, CitedBy: []string{}}
	if ev.Cites, err = s.evidenceIDs(ctx,
		`SELECT e.evidence_id FROM node_evidence e
		 LEFT JOIN nodes n ON n.persona = e.persona AND n.node_id = e.evidence_id
		 WHERE e.persona = ? AND e.node_id = ?
		 ORDER BY COALESCE(n.node_count, -1), e.evidence_id`, persona, nodeID); err != nil {
		return nil, err
	}
	if ev.CitedBy, err = s.evidenceIDs(ctx,
		`SELECT e.node_id FROM node_evidence e
		 JOIN nodes n ON n.persona = e.persona AND n.node_id = e.node_id
		 WHERE e.persona = ? AND e.evidence_id = ?
		 ORDER BY n.node_count`, persona, nodeID); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *SQLiteStore) evidenceIDs(ctx context.Context, query, persona, nodeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, persona, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
