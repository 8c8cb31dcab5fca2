// ABOUTME: Tests for pure message operations
// ABOUTME: Covers trimming, shallow updates, tag idempotence and append-only thread links

package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessages() []Message {
	return []Message{
		{ID: "m1", Username: "alice", Content: "hello"},
		{ID: "m2", Username: "bob", Content: "hi", Tags: []string{"todo"}},
		{ID: "m3", Username: "carol", Content: "hey"},
	}
}

func TestCreateMessage(t *testing.T) {
	m := CreateMessage("alice", "  hello there \n", MessageOptions{Tags: []string{"a", " a ", "", "b"}})

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "alice", m.Username)
	assert.Equal(t, "hello there", m.Content)
	assert.Equal(t, []string{"a", "b"}, m.Tags)
	assert.Nil(t, m.ThreadIDs)

	ts, err := ParseTime(m.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestCreateMessage_IDsAreUniqueAndOrdered(t *testing.T) {
	a := CreateMessage("alice", "one", MessageOptions{})
	b := CreateMessage("alice", "two", MessageOptions{})

	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.ID, b.ID)

	created, err := IDTime(a.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, 5*time.Second)
}

func TestIDTime_Invalid(t *testing.T) {
	_, err := IDTime("not-an-id")
	assert.Error(t, err)
}

func TestUpdateMessage(t *testing.T) {
	msgs := sampleMessages()
	content := "  hello, edited "

	ch, res := UpdateMessage(msgs, "m2", MessageUpdate{Content: &content})
	require.Equal(t, Applied, res)
	assert.Equal(t, 1, ch.Index)
	assert.Equal(t, "hello, edited", ch.Item().Content)
	assert.NotEmpty(t, ch.Item().EditedAt)
	assert.Equal(t, []string{"todo"}, ch.Item().Tags)

	// input untouched
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Len(t, ch.Items, 3)
}

func TestUpdateMessage_KeepsThreadIDs(t *testing.T) {
	msgs := sampleMessages()
	msgs[0].ThreadIDs = []string{"t1"}
	content := "hello again"

	ch, res := UpdateMessage(msgs, "m1", MessageUpdate{Content: &content, Tags: []string{}})
	require.Equal(t, Applied, res)
	assert.Equal(t, []string{"t1"}, ch.Item().ThreadIDs)
	assert.Empty(t, ch.Item().Tags)
}

func TestUpdateMessage_NotFound(t *testing.T) {
	ch, res := UpdateMessage(sampleMessages(), "nope", MessageUpdate{})
	assert.Nil(t, ch)
	assert.Equal(t, NotFound, res)
	assert.False(t, res.OK())
}

func TestAddTagToMessage(t *testing.T) {
	msgs := sampleMessages()

	ch, res := AddTagToMessage(msgs, "m1", "important")
	require.True(t, res.OK())
	assert.Equal(t, 0, ch.Index)
	assert.Equal(t, []string{"important"}, ch.Item().Tags)

	again, res := AddTagToMessage(ch.Items, "m1", "important")
	assert.Nil(t, again)
	assert.Equal(t, Unchanged, res)

	_, res = AddTagToMessage(msgs, "missing", "x")
	assert.Equal(t, NotFound, res)

	assert.Nil(t, msgs[0].Tags)
}

func TestRemoveTagFromMessage(t *testing.T) {
	msgs := sampleMessages()

	ch, res := RemoveTagFromMessage(msgs, "m2", "todo")
	require.Equal(t, Applied, res)
	assert.Empty(t, ch.Item().Tags)
	assert.Equal(t, []string{"todo"}, msgs[1].Tags)

	_, res = RemoveTagFromMessage(msgs, "m1", "todo")
	assert.Equal(t, Unchanged, res)
}

func TestAppendThreadID(t *testing.T) {
	msgs := sampleMessages()

	ch, res := AppendThreadID(msgs, "m3", "t1")
	require.Equal(t, Applied, res)
	ch, res = AppendThreadID(ch.Items, "m3", "t2")
	require.Equal(t, Applied, res)
	assert.Equal(t, []string{"t1", "t2"}, ch.Item().ThreadIDs)

	_, res = AppendThreadID(ch.Items, "m3", "t1")
	assert.Equal(t, Unchanged, res)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "unchanged", Unchanged.String())
}
