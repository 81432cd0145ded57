package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
)

var t0 = time.Date(2023, 2, 13, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// isabella holds node_1 and node_2 (events), node_3 (plan), node_4
// (reflection citing node_1 and node_2) and node_5 (chat with Klaus).
func isabella(t *testing.T) *persona.Persona {
	t.Helper()
	p := persona.New("Isabella Rodriguez")
	p.Scratch.Innate = "friendly, outgoing"
	p.Scratch.CurrTime = t0.Add(24 * time.Hour)
	p.Scratch.DailyReq = []string{"open Hobbs Cafe at 8am"}

	add := func(in memory.NodeInput) *model.Node {
		n, err := p.Memory.Add(in)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		return n
	}
	exp := t0.Add(30 * 24 * time.Hour)
	e1 := add(memory.NodeInput{
		Type: model.TypeEvent, Created: t0, Expiration: &exp,
		Subject: "Isabella Rodriguez", Predicate: "is", Object: "opening the cafe",
		Description: "Isabella Rodriguez is opening Hobbs Cafe", Keywords: []string{"Isabella Rodriguez", "cafe"},
		Poignancy: 3, Embedding: embedding.Vector{1, 0, 0},
	})
	e2 := add(memory.NodeInput{
		Type: model.TypeEvent, Created: t0.Add(time.Hour),
		Subject: "Klaus Mueller", Predicate: "is", Object: "reading",
		Description: "Klaus Mueller is reading about gentrification", Keywords: []string{"Klaus Mueller", "reading"},
		Poignancy: 2, Embedding: embedding.Vector{0, 0, 1},
	})
	add(memory.NodeInput{
		Type: model.TypeThought, Created: t0.Add(2 * time.Hour), Description: "plan the Valentine's Day party",
		Keywords: []string{"party", "plan"}, Poignancy: 8, Filling: model.PlanFilling(),
	})
	add(memory.NodeInput{
		Type: model.TypeThought, Created: t0.Add(3 * time.Hour), Description: "Isabella values her regulars",
		Keywords: []string{"community"}, Poignancy: 6, Filling: model.ReflectionFilling(e1.NodeID, e2.NodeID),
	})
	add(memory.NodeInput{
		Type: model.TypeChat, Created: t0.Add(4 * time.Hour),
		Subject: "Isabella Rodriguez", Predicate: "chat with", Object: "Klaus Mueller",
		Description: "conversation about the party", Keywords: []string{"Klaus Mueller"}, Poignancy: 7,
		Filling: model.TranscriptFilling(
			model.Utterance{Speaker: "Klaus Mueller", Line: "Are you hosting something on Valentine's Day?"},
			model.Utterance{Speaker: "Isabella Rodriguez", Line: "A party at the cafe, you should come."},
		),
	})
	return p
}

func TestSaveAndLoadPersona(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := isabella(t)

	info, err := s.SavePersona(ctx, p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if info.Nodes != 5 || info.Events != 2 || info.Thoughts != 2 || info.Chats != 1 {
		t.Errorf("unexpected counts: %+v", info)
	}
	if info.Chunks < 6 {
		t.Errorf("expected a chunk per description plus the transcript, got %d", info.Chunks)
	}

	got, err := s.LoadPersona(ctx, "Isabella Rodriguez")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := got.Memory.Validate(); err != nil {
		t.Fatalf("loaded memory is inconsistent: %v", err)
	}
	if got.Scratch.Innate != "friendly, outgoing" || !got.Scratch.CurrTime.Equal(p.Scratch.CurrTime) {
		t.Errorf("scratch not restored: %+v", got.Scratch)
	}
	if got.Memory.Len() != 5 {
		t.Fatalf("expected 5 nodes, got %d", got.Memory.Len())
	}

	want := p.Memory.Nodes()
	have := got.Memory.Nodes()
	for i := range want {
		w, h := want[i], have[i]
		if w.NodeID != h.NodeID || w.NodeCount != h.NodeCount || w.TypeCount != h.TypeCount || w.Depth != h.Depth {
			t.Errorf("node %d: ids or counts differ: %+v vs %+v", i, w, h)
		}
		if !w.Created.Equal(h.Created) || !w.LastAccessed.Equal(h.LastAccessed) {
			t.Errorf("node %s: times differ", w.NodeID)
		}
		if w.Filling.Kind != h.Filling.Kind || len(w.Filling.Evidence) != len(h.Filling.Evidence) ||
			len(w.Filling.Transcript) != len(h.Filling.Transcript) {
			t.Errorf("node %s: filling differs: %+v vs %+v", w.NodeID, w.Filling, h.Filling)
		}
	}
	if have[0].Expiration == nil || !have[0].Expiration.Equal(*want[0].Expiration) {
		t.Errorf("expiration not restored: %v", have[0].Expiration)
	}
	if vec, ok := got.Memory.Embedding("Isabella Rodriguez is opening Hobbs Cafe"); !ok || vec[0] != 1 {
		t.Errorf("embedding not restored: %v %v", vec, ok)
	}
	if n := got.Memory.ThoughtsByKeyword("party"); len(n) != 1 || n[0].NodeID != "node_3" {
		t.Errorf("keyword index not rebuilt: %v", n)
	}
}

func TestSaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := isabella(t)

	if _, err := s.SavePersona(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.Memory.Retain(func(n *model.Node) bool { return n.Type != model.TypeThought })
	if _, err := s.SavePersona(ctx, p); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.LoadPersona(ctx, p.Name())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Memory.Len() != 3 {
		t.Errorf("expected 3 nodes after replace, got %d", got.Memory.Len())
	}
	list, _ := s.ListPersonas(ctx)
	if len(list) != 1 || list[0].Thoughts != 0 {
		t.Errorf("unexpected list after replace: %+v", list)
	}
}

func TestListAndDeletePersona(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.SavePersona(ctx, isabella(t)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.SavePersona(ctx, persona.New("Klaus Mueller")); err != nil {
		t.Fatalf("save empty persona: %v", err)
	}

	list, err := s.ListPersonas(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 personas, got %d", len(list))
	}
	if list[0].Name != "Isabella Rodriguez" || list[1].Name != "Klaus Mueller" {
		t.Errorf("expected personas sorted by name, got %s, %s", list[0].Name, list[1].Name)
	}
	if list[1].Nodes != 0 {
		t.Errorf("expected Klaus to have no nodes, got %d", list[1].Nodes)
	}

	if err := s.DeletePersona(ctx, "Isabella Rodriguez"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadPersona(ctx, "Isabella Rodriguez"); !errors.Is(err, ErrPersonaNotFound) {
		t.Errorf("expected ErrPersonaNotFound, got %v", err)
	}
	if err := s.DeletePersona(ctx, "Isabella Rodriguez"); !errors.Is(err, ErrPersonaNotFound) {
		t.Errorf("expected ErrPersonaNotFound on second delete, got %v", err)
	}

	st, err := s.Stats(ctx, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalNodes != 0 || st.TotalChunks != 0 || st.Embeddings != 0 {
		t.Errorf("expected rows removed with the persona, got %+v", st)
	}
}

func TestSaveAblatedPersona(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := isabella(t)

	n, err := p.Memory.AddEvent(memory.NodeInput{
		Created: t0, Subject: p.Name(), Predicate: "is", Object: p.Name(),
		Description: "Isabella Rodriguez is Isabella Rodriguez", Keywords: []string{p.Name()},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := p.Memory.Isolate(n.NodeID, "node_0"); err != nil {
		t.Fatalf("isolate: %v", err)
	}

	if _, err := s.SavePersona(ctx, isabella(t)); err != nil {
		t.Fatalf("save source: %v", err)
	}
	const key = "Isabella Rodriguez [no_observation_no_reflection_no_planning]"
	info, err := s.SavePersonaAs(ctx, key, p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if info.Name != key || info.Nodes != 1 {
		t.Errorf("unexpected info %+v", info)
	}

	got, err := s.LoadPersona(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name() != "Isabella Rodriguez" {
		t.Errorf("expected the persona to keep its own name, got %q", got.Name())
	}
	nodes := got.Memory.Nodes()
	if len(nodes) != 1 || nodes[0].NodeID != "node_0" || nodes[0].NodeCount != 0 {
		t.Errorf("expected only node_0, got %+v", nodes)
	}

	src, err := s.LoadPersona(ctx, "Isabella Rodriguez")
	if err != nil {
		t.Fatalf("load source: %v", err)
	}
	if src.Memory.Len() != 5 {
		t.Errorf("expected the source to keep 5 nodes, got %d", src.Memory.Len())
	}
	list, err := s.ListPersonas(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].IsCopy() || !list[1].IsCopy() {
		t.Fatalf("expected the source then its copy, got %+v", list)
	}
	if list[1].Name != key || list[1].Persona != "Isabella Rodriguez" {
		t.Errorf("expected the copy keyed by %q for Isabella, got %q / %q", key, list[1].Name, list[1].Persona)
	}

	if _, err := s.SavePersonaAs(ctx, "", p); err == nil {
		t.Error("expected an error for an empty name")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.SavePersona(ctx, isabella(t)); err != nil {
		t.Fatalf("save: %v", err)
	}

	st, err := s.Stats(ctx, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Personas != 1 || st.TotalNodes != 5 {
		t.Errorf("unexpected totals: %+v", st)
	}
	if st.ByType["event"] != 2 || st.ByType["thought"] != 2 || st.ByType["chat"] != 1 {
		t.Errorf("unexpected type counts: %v", st.ByType)
	}
	if st.ByFilling["plan"] != 1 || st.ByFilling["reflection"] != 1 || st.ByFilling["transcript"] != 1 {
		t.Errorf("unexpected filling counts: %v", st.ByFilling)
	}
	if st.Embeddings != 2 {
		t.Errorf("expected 2 embeddings, got %d", st.Embeddings)
	}
}
