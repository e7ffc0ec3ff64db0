package a2a

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJSONArtifactRoundTrip(t *testing.T) {
	payload := map[string]any{
		"sessionId": "s-1",
		"status":    "completed",
		"answer":    `quotes "and" commas, too`,
	}

	artifact, err := EncodeJSONArtifact("query-result", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.ArtifactID)
	assert.Equal(t, "application/json", artifact.MimeType)
	assert.Contains(t, artifact.URI, ";base64,")

	raw, err := DecodeDataURI(artifact.URI)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, payload["answer"], decoded["answer"])
	assert.Equal(t, "completed", decoded["status"])
}

func TestDecodeDataURI_PercentEncoded(t *testing.T) {
	body := `{"key":"value with spaces"}`
	uri := "data:application/json," + url.PathEscape(body)

	raw, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(raw))
}

func TestDecodeDataURI_Errors(t *testing.T) {
	_, err := DecodeDataURI("https://example.com/x.json")
	assert.Error(t, err)

	_, err = DecodeDataURI("data:application/json;base64")
	assert.Error(t, err)

	_, err = DecodeDataURI("data:application/json;base64,!!!not-base64!!!")
	assert.Error(t, err)
}

func TestDecodeArtifact_Inline(t *testing.T) {
	artifact := Artifact{ArtifactID: "a-1", Data: map[string]any{"n": float64(1)}}
	raw, err := DecodeArtifact(artifact)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(raw))

	_, err = DecodeArtifact(Artifact{ArtifactID: "a-2", URI: "https://remote"})
	assert.Error(t, err)
}
