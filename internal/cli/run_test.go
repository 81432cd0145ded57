package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
	"github.com/rcliao/persona-memory/internal/store"
)

var t0 = time.Date(2023, 2, 13, 8, 0, 0, 0, time.UTC)

// isolateEnv keeps the developer's environment and .env out of a command run.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PERSONA_MEMORY_DB", "PERSONA_MEMORY_LOG_LEVEL", "PERSONA_MEMORY_LOG_FORMAT",
		"PERSONA_MEMORY_EMBEDDING_MODEL", "PERSONA_MEMORY_EMBEDDING_DIMS",
		"PERSONA_MEMORY_LLM_PROVIDER", "PERSONA_MEMORY_LLM_MODEL", "PERSONA_MEMORY_RETRIEVAL_COUNT",
		"OLLAMA_HOST", "OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("PERSONA_MEMORY_EMBEDDING_PROVIDER", "hash")
	t.Chdir(t.TempDir())
}

func run(t *testing.T, args ...string) {
	t.Helper()
	RootCmd.SetArgs(args)
	require.NoError(t, RootCmd.ExecuteContext(context.Background()), "%v", args)
}

func openTestStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// sourcePersona has one event and one reflection citing it.
func sourcePersona(t *testing.T, name string) *persona.Persona {
	t.Helper()
	p := persona.New(name)
	p.Scratch.CurrTime = t0.Add(24 * time.Hour)
	e, err := p.Memory.AddEvent(memory.NodeInput{
		Created: t0, Subject: name, Predicate: "is", Object: "brewing coffee",
		Description: name + " is brewing coffee", Keywords: []string{name, "coffee"}, Poignancy: 3,
	})
	require.NoError(t, err)
	_, err = p.Memory.AddThought(memory.NodeInput{
		Created: t0.Add(time.Hour), Description: name + " loves the morning rush", Keywords: []string{"coffee"},
		Poignancy: 6, Filling: model.ReflectionFilling(e.NodeID),
	})
	require.NoError(t, err)
	return p
}

func TestCommandsSaveAblatedCopiesUnderTheirKey(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	seed := openTestStore(t, db)
	_, err := seed.SavePersona(ctx, sourcePersona(t, "Isabella Rodriguez"))
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	const copyKey = "Isabella Rodriguez [no_reflection]"
	run(t, "--db", db, "ablate", "--persona", "Isabella Rodriguez", "--condition", "no_reflection")
	run(t, "--db", db, "add", "--persona", copyKey, "--poignancy", "3", "Isabella sweeps the floor")
	run(t, "--db", db, "retrieve", "--persona", copyKey, "--save", "coffee")

	s := openTestStore(t, db)
	src, err := s.LoadPersona(ctx, "Isabella Rodriguez")
	require.NoError(t, err)
	assert.Len(t, src.Memory.Events(), 1, "source must not gain the copy's event")
	assert.Len(t, src.Memory.Thoughts(), 1, "source must keep its reflection")
	for _, n := range src.Memory.Nodes() {
		assert.True(t, n.Created.Equal(n.LastAccessed), "source %s was touched", n.NodeID)
	}

	cp, err := s.LoadPersona(ctx, copyKey)
	require.NoError(t, err)
	assert.Equal(t, "Isabella Rodriguez", cp.Name())
	events := cp.Memory.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Isabella sweeps the floor", events[1].Description)
	assert.Empty(t, cp.Memory.Thoughts())
	assert.True(t, cp.Scratch.CurrTime.Equal(events[0].LastAccessed), "retrieve --save must persist the copy")

	list, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestInterviewPoolSkipsAblatedCopies(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "memory.db"))

	for _, name := range []string{"Isabella Rodriguez", "Klaus Mueller"} {
		_, err := s.SavePersona(ctx, sourcePersona(t, name))
		require.NoError(t, err)
	}
	_, err := s.SavePersonaAs(ctx, "Klaus Mueller [no_reflection]", sourcePersona(t, "Klaus Mueller"))
	require.NoError(t, err)

	names := func(ps []*persona.Persona) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Name())
		}
		return out
	}

	all, targets, err := interviewPool(ctx, s, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Isabella Rodriguez", "Klaus Mueller"}, names(all))
	assert.Equal(t, []string{"Isabella Rodriguez", "Klaus Mueller"}, names(targets))

	all, targets, err = interviewPool(ctx, s, []string{"Isabella Rodriguez"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{"Isabella Rodriguez"}, names(targets))

	_, _, err = interviewPool(ctx, s, []string{"Klaus Mueller [no_reflection]"})
	assert.ErrorContains(t, err, "ablated copy")
	_, _, err = interviewPool(ctx, s, []string{"Nobody"})
	assert.ErrorIs(t, err, store.ErrPersonaNotFound)
}

func TestFilterNodes(t *testing.T) {
	p := sourcePersona(t, "Isabella Rodriguez")
	exp := t0.Add(time.Hour)
	_, err := p.Memory.AddEvent(memory.NodeInput{
		Created: t0.Add(2 * time.Hour), Subject: "Isabella Rodriguez", Predicate: "chat with", Object: "Klaus Mueller",
		Description: "Isabella Rodriguez is chatting with Klaus Mueller", Expiration: &exp,
	})
	require.NoError(t, err)
	nodes := p.Memory.Nodes()

	got := filterNodes(nodes, nodeFilter{Category: model.CategoryChatEvent})
	require.Len(t, got, 1)
	assert.Equal(t, "node_3", got[0].NodeID)

	got = filterNodes(nodes, nodeFilter{Live: true, Now: p.Scratch.CurrTime})
	assert.Len(t, got, 2, "the expired chat event is dropped")

	got = filterNodes(nodes, nodeFilter{Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "node_3", got[0].NodeID, "most recent first")
}

func TestRecall(t *testing.T) {
	p := sourcePersona(t, "Isabella Rodriguez")
	_, err := p.Memory.AddChat(memory.NodeInput{
		Created: t0.Add(2 * time.Hour), Description: "conversation about coffee", Keywords: []string{"Klaus Mueller"},
	})
	require.NoError(t, err)

	res, err := recall(p, memory.Triple{}, "Klaus Mueller", 5)
	require.NoError(t, err)
	assert.Equal(t, memory.Triple{Subject: "Isabella Rodriguez", Predicate: "is", Object: "brewing coffee"}, res.Triple)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "node_1", res.Events[0].NodeID)
	assert.Equal(t, keywordStrength{Event: 1}, res.Strength["Isabella Rodriguez"])
	require.NotNil(t, res.LastChat)
	assert.Equal(t, "node_3", res.LastChat.NodeID)
	assert.Equal(t, []memory.Triple{res.Triple}, res.Latest)

	res, err = recall(p, memory.Triple{Object: "coffee"}, "", 0)
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
	assert.Len(t, res.Thoughts, 1)
	assert.Equal(t, keywordStrength{Event: 1, Thought: 1}, res.Strength["coffee"])
	assert.Nil(t, res.LastChat)

	_, err = recall(persona.New("Klaus Mueller"), memory.Triple{}, "", 0)
	assert.Error(t, err)
}
