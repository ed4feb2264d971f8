package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCategory_PlainObjects(t *testing.T) {
	raw := []byte(`[
		{"id": "q-1", "prompt": "What is 2+2?"},
		{"id": 42, "prompt": "What is 3+3?"}
	]`)

	pool, err := NormalizeCategory(5, raw)
	require.NoError(t, err)
	require.Len(t, pool.Questions, 2)

	assert.Equal(t, "q-1", pool.Questions[0].ID)
	assert.Equal(t, "42", pool.Questions[1].ID)
	assert.Equal(t, 5, pool.Questions[0].CategoryID)
	// The id key is lifted out of the body
	assert.NotContains(t, pool.Questions[0].Body, "id")
	assert.Equal(t, "What is 2+2?", pool.Questions[0].Body["prompt"])
}

func TestNormalizeCategory_SynthesizesMissingIDs(t *testing.T) {
	raw := []byte(`[
		{"prompt": "first"},
		{"prompt": "second"},
		{"id": "", "prompt": "third"}
	]`)

	pool, err := NormalizeCategory(12, raw)
	require.NoError(t, err)
	require.Len(t, pool.Questions, 3)

	assert.Equal(t, "12_0", pool.Questions[0].ID)
	assert.Equal(t, "12_1", pool.Questions[1].ID)
	// An empty string id counts as missing
	assert.Equal(t, "12_2", pool.Questions[2].ID)
}

func TestNormalizeCategory_DoubleEncodedPayloads(t *testing.T) {
	// Questions historically stored as JSON strings containing encoded objects
	inner, err := json.Marshal(map[string]interface{}{"id": "enc-1", "prompt": "encoded"})
	require.NoError(t, err)
	raw, err := json.Marshal([]string{string(inner)})
	require.NoError(t, err)

	pool, err := NormalizeCategory(3, raw)
	require.NoError(t, err)
	require.Len(t, pool.Questions, 1)

	assert.Equal(t, "enc-1", pool.Questions[0].ID)
	assert.Equal(t, "encoded", pool.Questions[0].Body["prompt"])
}

func TestNormalizeCategory_StripsStorageMetadata(t *testing.T) {
	raw := []byte(`[{
		"id": "q-1",
		"prompt": "hello",
		"$createdAt": "2024-01-01T00:00:00Z",
		"$updatedAt": "2024-01-02T00:00:00Z",
		"$permissions": ["read"],
		"$databaseId": "main",
		"$collectionId": "questions"
	}]`)

	pool, err := NormalizeCategory(1, raw)
	require.NoError(t, err)
	require.Len(t, pool.Questions, 1)

	body := pool.Questions[0].Body
	for _, key := range storageMetadataKeys {
		assert.NotContains(t, body, key)
	}
	assert.Equal(t, "hello", body["prompt"])
}

func TestNormalizeCategory_SubQuestionIdentifiers(t *testing.T) {
	raw := []byte(`[{
		"id": "parent",
		"either": {
			"id": "either-7",
			"sub_questions": [
				{"prompt": "a"},
				{"id": "kept", "prompt": "b"},
				{"prompt": "c"}
			]
		},
		"or": {
			"sub_questions": [
				{"prompt": "d"}
			]
		}
	}]`)

	pool, err := NormalizeCategory(9, raw)
	require.NoError(t, err)
	require.Len(t, pool.Questions, 1)
	body := pool.Questions[0].Body

	either := body["either"].(map[string]interface{})
	subs := either["sub_questions"].([]interface{})
	assert.Equal(t, "either-7_sub_0", subs[0].(map[string]interface{})["id"])
	assert.Equal(t, "kept", subs[1].(map[string]interface{})["id"])
	assert.Equal(t, "either-7_sub_2", subs[2].(map[string]interface{})["id"])

	// The or slot has no id of its own, so parts inherit the question's
	or := body["or"].(map[string]interface{})
	orSubs := or["sub_questions"].([]interface{})
	assert.Equal(t, "parent_sub_0", orSubs[0].(map[string]interface{})["id"])
}

func TestNormalizeCategory_Idempotent(t *testing.T) {
	raw := []byte(`[
		{"prompt": "no id"},
		{"id": "q-2", "prompt": "with id", "either": {"sub_questions": [{"prompt": "part"}]}}
	]`)

	first, err := NormalizeCategory(4, raw)
	require.NoError(t, err)
	second, err := NormalizeCategory(4, raw)
	require.NoError(t, err)

	assert.Equal(t, first.QuestionIDs(), second.QuestionIDs())
	assert.Equal(t, first, second)
}

func TestNormalizeCategory_RejectsNonArray(t *testing.T) {
	_, err := NormalizeCategory(1, []byte(`{"not": "an array"}`))
	require.Error(t, err)
}

func TestNormalizeCategory_RejectsUndecodablePayload(t *testing.T) {
	_, err := NormalizeCategory(1, []byte(`["not an encoded object"]`))
	require.Error(t, err)

	_, err = NormalizeCategory(1, []byte(`[17]`))
	require.Error(t, err)
}

func TestNormalizeCategory_EmptyArray(t *testing.T) {
	pool, err := NormalizeCategory(8, []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, 8, pool.CategoryID)
	assert.Empty(t, pool.Questions)
}

func TestExtractID(t *testing.T) {
	assert.Equal(t, "abc", extractID(map[string]interface{}{"id": "abc"}))
	assert.Equal(t, "42", extractID(map[string]interface{}{"id": float64(42)}))
	assert.Equal(t, "42.5", extractID(map[string]interface{}{"id": float64(42.5)}))
	assert.Equal(t, "7", extractID(map[string]interface{}{"id": json.Number("7")}))
	assert.Equal(t, "", extractID(map[string]interface{}{"id": true}))
	assert.Equal(t, "", extractID(map[string]interface{}{}))
}
