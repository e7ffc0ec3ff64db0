package a2a

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// dataURIPrefix is the scheme prefix of inline artifact payloads.
const dataURIPrefix = "data:"

// EncodeJSONArtifact marshals payload and wraps it in a base64 data: URI
// artifact. Base64 is preferred over percent encoding to avoid ambiguity
// with JSON string characters.
func EncodeJSONArtifact(name string, payload any) (Artifact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to marshal artifact payload: %w", err)
	}
	return Artifact{
		ArtifactID: uuid.New().String(),
		Name:       name,
		MimeType:   "application/json",
		URI:        dataURIPrefix + "application/json;base64," + base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// DecodeDataURI decodes a data: URI body. Both base64 and percent-encoded
// bodies are accepted; the ";base64" marker in the scheme header selects
// the decoding.
func DecodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, dataURIPrefix) {
		return nil, fmt.Errorf("not a data: URI")
	}
	rest := strings.TrimPrefix(uri, dataURIPrefix)

	comma := strings.Index(rest, ",")
	if comma < 0 {
		return nil, fmt.Errorf("malformed data: URI: missing comma")
	}
	header, body := rest[:comma], rest[comma+1:]

	if strings.HasSuffix(header, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 body: %w", err)
		}
		return decoded, nil
	}

	decoded, err := url.PathUnescape(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode percent-encoded body: %w", err)
	}
	return []byte(decoded), nil
}

// DecodeArtifact returns the artifact's payload bytes, resolving inline
// data and data: URIs. Remote URIs are out of scope here and return an
// error.
func DecodeArtifact(artifact Artifact) ([]byte, error) {
	if artifact.Data != nil {
		raw, err := json.Marshal(artifact.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inline artifact data: %w", err)
		}
		return raw, nil
	}
	if strings.HasPrefix(artifact.URI, dataURIPrefix) {
		return DecodeDataURI(artifact.URI)
	}
	return nil, fmt.Errorf("artifact %s has no inline payload", artifact.ArtifactID)
}
