package ablate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
)

var t0 = time.Date(2023, 2, 13, 8, 0, 0, 0, time.UTC)

type fixedScorer struct {
	score float64
	err   error
	calls int
}

func (s *fixedScorer) ScoreImportance(_ context.Context, _ *model.Scratch, _ model.NodeType, _ string) (float64, error) {
	s.calls++
	return s.score, s.err
}

type fixedEmbedder struct {
	err error
}

func (e fixedEmbedder) Embed(_ context.Context, _ string) (embedding.Vector, error) {
	if e.err != nil {
		return nil, e.err
	}
	return embedding.Vector{0.6, 0.8}, nil
}

func (e fixedEmbedder) Dims() int { return 2 }

func deps() Deps {
	return Deps{Embedder: fixedEmbedder{}, Scorer: &fixedScorer{score: 4}}
}

func isabella(t *testing.T) *persona.Persona {
	t.Helper()
	p := persona.New("Isabella Rodriguez")
	p.Scratch.DailyReq = []string{"open Hobbs Cafe at 8am"}
	p.Scratch.DailyPlanReq = "Isabella plans to host a party"
	p.Scratch.FDailySchedule = []model.ScheduleItem{{Activity: "sleeping", Minutes: 420}}
	p.Scratch.FDailyScheduleHourlyOrg = []model.ScheduleItem{{Activity: "sleeping", Minutes: 420}}
	p.Scratch.ChattingWith = "Klaus Mueller"
	p.Scratch.Chat = []model.Utterance{{Speaker: "Klaus Mueller", Line: "Hi"}}
	p.Scratch.ChattingWithBuffer = map[string]int{"Klaus Mueller": 800}

	add := func(in memory.NodeInput) *model.Node {
		n, err := p.Memory.Add(in)
		require.NoError(t, err)
		return n
	}
	e1 := add(memory.NodeInput{
		Type: model.TypeEvent, Created: t0, Subject: "Isabella Rodriguez", Predicate: "is", Object: "opening the cafe",
		Description: "Isabella Rodriguez is opening the cafe", Keywords: []string{"Isabella Rodriguez", "cafe"}, Poignancy: 3,
	})
	add(memory.NodeInput{
		Type: model.TypeEvent, Created: t0.Add(time.Hour), Subject: "Klaus Mueller", Predicate: "is", Object: "reading",
		Description: "Klaus Mueller is reading", Keywords: []string{"Klaus Mueller", "reading"}, Poignancy: 2,
	})
	add(memory.NodeInput{
		Type: model.TypeThought, Created: t0.Add(2 * time.Hour), Description: "plan the Valentine's Day party",
		Keywords: []string{"party", "plan"}, Poignancy: 8, Filling: model.PlanFilling(),
	})
	add(memory.NodeInput{
		Type: model.TypeThought, Created: t0.Add(3 * time.Hour), Description: "Isabella values community",
		Keywords: []string{"community", "party"}, Poignancy: 6, Filling: model.ReflectionFilling(e1.NodeID),
	})
	add(memory.NodeInput{
		Type: model.TypeThought, Created: t0.Add(4 * time.Hour), Description: "reflection failed",
		Keywords: []string{"failure"}, Poignancy: 1, Filling: model.ReflectionErrorFilling("no output"),
	})
	add(memory.NodeInput{
		Type: model.TypeChat, Created: t0.Add(5 * time.Hour), Subject: "Isabella Rodriguez", Predicate: "chat with", Object: "Klaus Mueller",
		Description: "conversation with Klaus Mueller", Keywords: []string{"Klaus Mueller"}, Poignancy: 5,
		Filling: model.TranscriptFilling(model.Utterance{Speaker: "Klaus Mueller", Line: "Hello"}),
	})
	return p
}

func snapshotJSON(t *testing.T, p *persona.Persona) []byte {
	t.Helper()
	b, err := json.Marshal(p.Snapshot())
	require.NoError(t, err)
	return b
}

func assertPartition(t *testing.T, p *persona.Persona) {
	t.Helper()
	c := p.Memory.Counts()
	assert.Equal(t, c.Thoughts, c.Plans+c.Reflections+c.ReflectionErrors)
	assert.Equal(t, c.Thoughts, len(p.Memory.Thoughts()))
	require.NoError(t, p.Memory.Validate())
}

func TestRemoveReflections(t *testing.T) {
	p := isabella(t)
	before := len(p.Memory.Thoughts())

	removed := RemoveReflections(p)

	assert.Equal(t, 2, removed)
	assert.LessOrEqual(t, len(p.Memory.Thoughts()), before)
	for _, n := range p.Memory.Thoughts() {
		assert.True(t, n.IsPlan(), n.NodeID)
	}
	assert.Equal(t, []string{"party", "plan"}, p.Memory.Keywords(model.TypeThought))
	for _, kw := range p.Memory.Keywords(model.TypeThought) {
		assert.NotEmpty(t, p.Memory.ThoughtsByKeyword(kw), kw)
	}
	assert.Len(t, p.Memory.Events(), 2)
	assert.Len(t, p.Memory.Chats(), 1)
	assert.NotEmpty(t, p.Scratch.DailyReq)
	assertPartition(t, p)
}

func TestRemoveReflectionsAndPlans(t *testing.T) {
	p := isabella(t)

	RemoveReflectionsAndPlans(p)

	assert.Empty(t, p.Memory.Thoughts())
	assert.Empty(t, p.Memory.Keywords(model.TypeThought))
	assert.Len(t, p.Memory.Events(), 2)
	assert.Len(t, p.Memory.Chats(), 1)
	assert.Empty(t, p.Scratch.DailyReq)
	assert.Empty(t, p.Scratch.DailyPlanReq)
	assert.Empty(t, p.Scratch.FDailySchedule)
	assert.Empty(t, p.Scratch.FDailyScheduleHourlyOrg)
	assert.Equal(t, "Klaus Mueller", p.Scratch.ChattingWith)
	assertPartition(t, p)
}

func TestRemoveObservationsReflectionsAndPlans(t *testing.T) {
	p := isabella(t)
	scorer := &fixedScorer{score: 4}

	err := RemoveObservationsReflectionsAndPlans(context.Background(), p, Deps{Embedder: fixedEmbedder{}, Scorer: scorer})
	require.NoError(t, err)

	require.Equal(t, 1, p.Memory.Len())
	n, err := p.Memory.Get(SentinelNodeID)
	require.NoError(t, err)
	assert.Equal(t, "Isabella Rodriguez is Isabella Rodriguez", n.Description)
	assert.Equal(t, 0, n.NodeCount)
	assert.Equal(t, 0, n.TypeCount)
	assert.Equal(t, t0, n.Created)
	assert.Equal(t, 4.0, n.Poignancy)
	assert.Equal(t, 1, scorer.calls)

	vec, ok := p.Memory.Embedding(n.EmbeddingKey)
	require.True(t, ok)
	assert.Equal(t, embedding.Vector{0.6, 0.8}, vec)
	assert.Len(t, p.Memory.Embeddings(), 1)

	assert.Equal(t, []string{"node_0"}, []string{p.Memory.Events()[0].NodeID})
	assert.Equal(t, []string{"isabella rodriguez"}, p.Memory.Keywords(model.TypeEvent))
	assert.Empty(t, p.Memory.Thoughts())
	assert.Empty(t, p.Memory.Chats())
	assert.Empty(t, p.Memory.Keywords(model.TypeThought))
	assert.Empty(t, p.Memory.Keywords(model.TypeChat))

	assert.Empty(t, p.Scratch.ChattingWith)
	assert.Nil(t, p.Scratch.Chat)
	assert.Empty(t, p.Scratch.ChattingWithBuffer)
	assert.Empty(t, p.Scratch.DailyReq)
	assert.Empty(t, p.Scratch.FDailySchedule)
	assertPartition(t, p)
}

func TestFullAblationWithoutEventsUsesCurrentTime(t *testing.T) {
	p := persona.New("Klaus Mueller")
	p.Scratch.CurrTime = t0.Add(48 * time.Hour)

	require.NoError(t, RemoveObservationsReflectionsAndPlans(context.Background(), p, deps()))
	n, err := p.Memory.Get(SentinelNodeID)
	require.NoError(t, err)
	assert.Equal(t, p.Scratch.CurrTime, n.Created)
}

func TestFullAblationFailuresLeavePersonaUntouched(t *testing.T) {
	boom := errors.New("model unavailable")
	tests := []struct {
		name string
		deps Deps
		want error
	}{
		{"embedder fails", Deps{Embedder: fixedEmbedder{err: boom}, Scorer: &fixedScorer{}}, boom},
		{"scorer fails", Deps{Embedder: fixedEmbedder{}, Scorer: &fixedScorer{err: boom}}, boom},
		{"no scorer", Deps{Embedder: fixedEmbedder{}}, ErrMissingCollaborator},
		{"no embedder", Deps{Scorer: &fixedScorer{}}, ErrMissingCollaborator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := isabella(t)
			before := snapshotJSON(t, p)

			err := Apply(context.Background(), NoObservationNoReflectionNoPlanning, p, tt.deps)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, string(before), string(snapshotJSON(t, p)))
		})
	}
}

func TestDeriveLeavesSourceUnchanged(t *testing.T) {
	for _, cond := range AllConditions {
		t.Run(string(cond), func(t *testing.T) {
			p := isabella(t)
			before := snapshotJSON(t, p)

			derived, err := Derive(context.Background(), cond, p, deps())
			require.NoError(t, err)
			assert.NotSame(t, p.Memory, derived.Memory)
			assert.Equal(t, string(before), string(snapshotJSON(t, p)))
			assertPartition(t, derived)
		})
	}
}

func TestApplyUnknownCondition(t *testing.T) {
	err := Apply(context.Background(), Condition("no_memory"), isabella(t), deps())
	assert.ErrorIs(t, err, ErrUnknownCondition)
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("no_reflection")
	require.NoError(t, err)
	assert.Equal(t, NoReflection, c)

	_, err = ParseCondition("reflection")
	assert.ErrorIs(t, err, ErrUnknownCondition)
}

func TestNewConditions(t *testing.T) {
	p := isabella(t)
	conds, err := NewConditions(context.Background(), p, deps())
	require.NoError(t, err)

	assert.Equal(t, AllConditions, conds.List())

	full, ok := conds.Persona(FullArchitecture)
	require.True(t, ok)
	assert.Equal(t, p.Memory.Counts(), full.Memory.Counts())
	assert.NotSame(t, p, full)

	noRefl, _ := conds.Persona(NoReflection)
	assert.Equal(t, 1, noRefl.Memory.Counts().Thoughts)

	noPlan, _ := conds.Persona(NoReflectionNoPlanning)
	assert.Equal(t, 0, noPlan.Memory.Counts().Thoughts)

	none, _ := conds.Persona(NoObservationNoReflectionNoPlanning)
	assert.Equal(t, 1, none.Memory.Len())

	// ablating one clone further never reaches the others
	RemoveReflectionsAndPlans(full)
	assert.Equal(t, 1, noRefl.Memory.Counts().Thoughts)
	assert.Equal(t, 3, p.Memory.Counts().Thoughts)
}
