package persona

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
)

func newIsabella(t *testing.T) *Persona {
	t.Helper()
	p := New("Isabella Rodriguez")
	p.Scratch.DailyReq = []string{"open the cafe"}
	created := time.Date(2023, 2, 13, 9, 0, 0, 0, time.UTC)

	_, err := p.Memory.AddEvent(memory.NodeInput{
		Created: created, Subject: "Isabella Rodriguez", Predicate: "is", Object: "opening the cafe",
		Description: "Isabella Rodriguez is opening the cafe", Keywords: []string{"cafe"},
	})
	require.NoError(t, err)
	for _, other := range []string{"Klaus Mueller", "Maria Lopez", "Klaus Mueller"} {
		_, err := p.Memory.AddChat(memory.NodeInput{
			Created: created, Subject: "Isabella Rodriguez", Predicate: "chat with", Object: other,
			Description: "conversation with " + other, Keywords: []string{other},
			Filling: model.TranscriptFilling(
				model.Utterance{Speaker: "Isabella Rodriguez", Line: "Hello!"},
				model.Utterance{Speaker: other, Line: "Hi."},
				model.Utterance{Speaker: other, Line: "See you at the party."},
			),
		})
		require.NoError(t, err)
	}
	return p
}

func TestCloneSharesNothing(t *testing.T) {
	p := newIsabella(t)
	c := p.Clone()

	c.Scratch.DailyReq[0] = "changed"
	n, err := c.Memory.Get("node_1")
	require.NoError(t, err)
	n.Description = "changed"

	assert.Equal(t, "open the cafe", p.Scratch.DailyReq[0])
	orig, _ := p.Memory.Get("node_1")
	assert.Equal(t, "Isabella Rodriguez is opening the cafe", orig.Description)
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := newIsabella(t)

	b, err := json.Marshal(p.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(b, &snap))

	restored, err := FromSnapshot(&snap)
	require.NoError(t, err)
	require.NoError(t, restored.Memory.Validate())
	assert.Equal(t, p.Name(), restored.Name())
	assert.Equal(t, p.Memory.Counts(), restored.Memory.Counts())
	assert.Equal(t, p.Scratch.DailyReq, restored.Scratch.DailyReq)
}

func TestChatInteractionCounts(t *testing.T) {
	p := newIsabella(t)
	chats, exchanges := p.ChatInteractionCounts()

	assert.Equal(t, map[string]int{"Klaus Mueller": 2, "Maria Lopez": 1}, chats)
	assert.Equal(t, map[string]int{"Klaus Mueller": 4, "Maria Lopez": 2}, exchanges)
}
