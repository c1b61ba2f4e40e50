package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		parsed, err := ParseStatus(string(s))
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ParseStatus("")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStatus_Final(t *testing.T) {
	assert.False(t, StatusPending.Final())
	assert.True(t, StatusApproved.Final())
	assert.True(t, StatusRejected.Final())
	assert.False(t, Status("bogus").Final())
}

func TestStatusUpdate_UnmarshalRejectsUnknown(t *testing.T) {
	var upd StatusUpdate
	err := json.Unmarshal([]byte(`{"status":"deleted"}`), &upd)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	err = json.Unmarshal([]byte(`{"status":"approved"}`), &upd)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, upd.Status)
}

func TestNode_JSONShape(t *testing.T) {
	parent := "p"
	node := Node{
		ID:       "r1",
		Author:   "ann",
		Content:  "hi",
		Status:   StatusPending,
		Replies:  []Node{},
		PostID:   "p",
		ParentID: &parent,
	}

	data, err := json.Marshal(node)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	// Ответ без заголовка, служебные поля не сериализуются
	assert.NotContains(t, raw, "title")
	assert.NotContains(t, raw, "PostID")
	assert.NotContains(t, raw, "ParentID")
	assert.Equal(t, "pending", raw["status"])
	assert.Equal(t, []any{}, raw["replies"])
}
