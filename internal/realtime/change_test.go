package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRow struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Read           bool   `json:"read"`
}

func TestEventTypeTextRoundTrip(t *testing.T) {
	data, err := json.Marshal(struct {
		Type EventType `json:"type"`
	}{Type: EventUpdate})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"UPDATE"}`, string(data))

	var decoded struct {
		Type EventType `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"delete"}`), &decoded))
	assert.Equal(t, EventDelete, decoded.Type)

	_, err = ParseEventType("TRUNCATE")
	assert.Error(t, err)
}

func TestEventMask(t *testing.T) {
	mask := MaskInsert | MaskDelete
	assert.True(t, mask.Has(EventInsert))
	assert.False(t, mask.Has(EventUpdate))
	assert.True(t, mask.Has(EventDelete))
	assert.True(t, MaskAll.Has(EventUpdate))
}

func TestFilterParseAndMatch(t *testing.T) {
	filter, err := ParseFilter("conversation_id=eq.c-1")
	require.NoError(t, err)
	assert.Equal(t, Eq("conversation_id", "c-1"), filter)
	assert.Equal(t, "conversation_id=eq.c-1", filter.String())

	assert.True(t, filter.Matches(json.RawMessage(`{"conversation_id":"c-1"}`)))
	assert.False(t, filter.Matches(json.RawMessage(`{"conversation_id":"c-2"}`)))
	assert.False(t, filter.Matches(json.RawMessage(`{"other":"c-1"}`)))
	assert.False(t, filter.Matches(nil))
	assert.True(t, Filter{}.Matches(nil))

	assert.True(t, Eq("read", "true").Matches(json.RawMessage(`{"read":true}`)))

	_, err = ParseFilter("conversation_id=neq.c-1")
	assert.Error(t, err)
	_, err = ParseFilter("nonsense")
	assert.Error(t, err)
}

func TestDecodeUsesOldRecordForDelete(t *testing.T) {
	change, err := NewChange("messages", EventDelete, nil, testRow{ID: "m-1", ConversationID: "c-1"})
	require.NoError(t, err)

	row, err := Decode[testRow](change)
	require.NoError(t, err)
	assert.Equal(t, "m-1", row.ID)
	assert.True(t, Eq("conversation_id", "c-1").Matches(change.Row()))
}

func TestDecodeWithoutRowFails(t *testing.T) {
	_, err := Decode[testRow](Change{Table: "messages", Type: EventInsert})
	assert.Error(t, err)
}

func TestParseNotification(t *testing.T) {
	payload := `{"table":"messages","type":"INSERT","record":{"id":"m-9","conversation_id":"c-1","read":false},"old_record":null,"commit_timestamp":"2026-10-19T12:00:00.123456+00:00"}`

	change, err := ParseNotification([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "messages", change.Table)
	assert.Equal(t, EventInsert, change.Type)

	row, err := Decode[testRow](change)
	require.NoError(t, err)
	assert.Equal(t, "m-9", row.ID)

	_, err = ParseNotification([]byte(`{"type":"INSERT"}`))
	assert.Error(t, err)
}
