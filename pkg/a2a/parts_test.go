package a2a

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPart_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Part
		wantErr bool
	}{
		{
			name:  "text part with type discriminator",
			input: `{"type":"text","text":"hello"}`,
			want:  Part{Type: PartTypeText, Text: "hello"},
		},
		{
			name:  "text part with kind discriminator",
			input: `{"kind":"text","text":"hello"}`,
			want:  Part{Type: PartTypeText, Text: "hello"},
		},
		{
			name:  "data part",
			input: `{"type":"data","data":{"a":1}}`,
			want:  Part{Type: PartTypeData, Data: json.RawMessage(`{"a":1}`)},
		},
		{
			name:  "file part with imageUrl alias",
			input: `{"kind":"file","imageUrl":"https://example.com/x.png","mimeType":"image/png"}`,
			want:  Part{Type: PartTypeFile, URI: "https://example.com/x.png", MimeType: "image/png"},
		},
		{
			name:  "error part",
			input: `{"type":"error","error":"boom"}`,
			want:  Part{Type: PartTypeError, Error: "boom"},
		},
		{
			name:  "missing discriminator inferred from text",
			input: `{"text":"inferred"}`,
			want:  Part{Type: PartTypeText, Text: "inferred"},
		},
		{
			name:    "unsupported discriminator",
			input:   `{"type":"video","text":"x"}`,
			wantErr: true,
		},
		{
			name:    "empty object",
			input:   `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Part
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPart_MarshalEmitsBothDiscriminators(t *testing.T) {
	raw, err := json.Marshal(TextPart("hi"))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "text", m["type"])
	assert.Equal(t, "text", m["kind"])
}

func TestTextOf(t *testing.T) {
	msg := Message{
		Role: MessageRoleUser,
		Parts: []Part{
			TextPart("line one"),
			DataPart(json.RawMessage(`{"ignored":true}`)),
			TextPart("line two"),
		},
	}
	assert.Equal(t, "line one\nline two", TextOf(msg))
	assert.Equal(t, "", TextOf(Message{}))
}

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage(MessageRoleAgent, "done")
	require.Len(t, msg.Parts, 1)
	assert.Equal(t, MessageRoleAgent, msg.Role)
	assert.Equal(t, PartTypeText, msg.Parts[0].Type)
}
