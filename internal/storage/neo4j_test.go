package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/recall-mcp/pkg/types"
)

func TestMessagesFromValue(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{
			"id": "m1", "vector_id": "v1", "content": "hi", "role": "user",
			"timestamp": int64(100), "metadata": `{"a":1}`,
		},
		map[string]interface{}{
			"id": "m2", "vector_id": "v2", "content": "yo", "role": "assistant",
			"timestamp": int64(200), "metadata": nil,
		},
	}

	got := messagesFromValue(raw, "s1")
	assert.Equal(t, []types.StoredMessage{
		{ID: "m1", VectorID: "v1", SessionID: "s1", Content: "hi", Role: "user", Timestamp: 100, Metadata: `{"a":1}`},
		{ID: "m2", VectorID: "v2", SessionID: "s1", Content: "yo", Role: "assistant", Timestamp: 200},
	}, got)
}

func TestMessagesFromValue_EmptySession(t *testing.T) {
	// collect() over an OPTIONAL MATCH with no rows produces one map of nulls
	raw := []interface{}{
		map[string]interface{}{"id": nil, "vector_id": nil, "content": nil, "role": nil, "timestamp": nil, "metadata": nil},
	}
	assert.Empty(t, messagesFromValue(raw, "s1"))
	assert.Empty(t, messagesFromValue(nil, "s1"))
}

func TestMessageParams(t *testing.T) {
	params := messageParams([]types.StoredMessage{{ID: "m1", VectorID: "v1", Content: "hi", Role: "user", Timestamp: 5}})
	assert.Equal(t, []map[string]interface{}{{
		"id": "m1", "vector_id": "v1", "content": "hi", "role": "user", "timestamp": int64(5), "metadata": "",
	}}, params)
}
