package a2a

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartType discriminates the Part union.
type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeData  PartType = "data"
	PartTypeFile  PartType = "file"
	PartTypeError PartType = "error"
)

// Part is one piece of message content. It is a tagged union: exactly the
// fields belonging to Type are populated.
//
// Peers disagree about the discriminator key: some send "type", some send
// "kind". Decoding accepts either; encoding emits both so that any
// receiver can parse the result.
type Part struct {
	Type PartType

	// Text part.
	Text string

	// Data part: free-form JSON payload.
	Data json.RawMessage

	// File part.
	URI      string
	MimeType string

	// Error part.
	Error string
}

// partWire is the on-the-wire shape of Part.
type partWire struct {
	Type     PartType        `json:"type,omitempty"`
	Kind     PartType        `json:"kind,omitempty"`
	Text     string          `json:"text,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	URI      string          `json:"uri,omitempty"`
	ImageURL string          `json:"imageUrl,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// MarshalJSON emits the part with both "type" and "kind" set.
func (p Part) MarshalJSON() ([]byte, error) {
	w := partWire{
		Type:     p.Type,
		Kind:     p.Type,
		Text:     p.Text,
		Data:     p.Data,
		URI:      p.URI,
		MimeType: p.MimeType,
		Error:    p.Error,
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts "type" or "kind" as the discriminator and
// "imageUrl" as an alias for a file URI.
func (p *Part) UnmarshalJSON(data []byte) error {
	var w partWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	typ := w.Type
	if typ == "" {
		typ = w.Kind
	}
	if typ == "" {
		// Infer from populated fields for sloppy senders.
		switch {
		case w.Text != "":
			typ = PartTypeText
		case len(w.Data) > 0:
			typ = PartTypeData
		case w.URI != "" || w.ImageURL != "":
			typ = PartTypeFile
		case w.Error != "":
			typ = PartTypeError
		default:
			return fmt.Errorf("part has neither type nor kind")
		}
	}

	uri := w.URI
	if uri == "" {
		uri = w.ImageURL
	}

	switch typ {
	case PartTypeText, PartTypeData, PartTypeFile, PartTypeError:
	default:
		return fmt.Errorf("unsupported part type %q", typ)
	}

	*p = Part{
		Type:     typ,
		Text:     w.Text,
		Data:     w.Data,
		URI:      uri,
		MimeType: w.MimeType,
		Error:    w.Error,
	}
	return nil
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// DataPart builds a data part from an already-encoded JSON payload.
func DataPart(payload json.RawMessage) Part {
	return Part{Type: PartTypeData, Data: payload}
}

// FilePart builds a file part.
func FilePart(uri, mimeType string) Part {
	return Part{Type: PartTypeFile, URI: uri, MimeType: mimeType}
}

// ErrorPart builds an error part.
func ErrorPart(info string) Part {
	return Part{Type: PartTypeError, Error: info}
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:  role,
		Parts: []Part{TextPart(text)},
	}
}

// TextOf concatenates the text parts of a message with newlines.
func TextOf(msg Message) string {
	var texts []string
	for _, part := range msg.Parts {
		if part.Type == PartTypeText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
