package domain

import (
	"bytes"
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentKindText es la única variante de ContentPart que aporta texto.
const ContentKindText = "text"

// ContentPart es un elemento de un contenido multiparte: una parte estructurada
// {"type": ..., "text": ...} o un string suelto dentro de la lista.
// Las partes leídas del payload se reemiten tal cual llegaron.
type ContentPart struct {
	Type string
	Text string

	bare   bool
	noText bool
	raw    json.RawMessage
}

// TextPart construye una parte estructurada de tipo "text".
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentKindText, Text: text}
}

// BarePart construye un elemento de texto plano dentro de la lista.
func BarePart(text string) ContentPart {
	return ContentPart{Text: text, bare: true}
}

func (p ContentPart) IsBare() bool { return p.bare }

// TextValue devuelve el texto que aporta la parte; ok es false para partes
// que no son de texto (imágenes, archivos, valores desconocidos).
func (p ContentPart) TextValue() (string, bool) {
	if p.bare {
		return p.Text, true
	}
	if p.Type == ContentKindText && !p.noText {
		return p.Text, true
	}
	return "", false
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	*p = ContentPart{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		p.Text = s
		p.bare = true
		return nil
	}

	p.raw = append(json.RawMessage(nil), trimmed...)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	if rawType, ok := fields["type"]; ok {
		_ = json.Unmarshal(rawType, &p.Type)
	}
	rawText, ok := fields["text"]
	if !ok || json.Unmarshal(rawText, &p.Text) != nil {
		p.noText = true
	}
	return nil
}

func (p ContentPart) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	if p.bare {
		return json.Marshal(p.Text)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: p.Type, Text: p.Text})
}

// Content es texto plano o una secuencia ordenada de partes. Cualquier otro
// valor JSON (null, números, objetos) se conserva sin interpretarse.
type Content struct {
	Text  string
	Parts []ContentPart

	multipart bool
	raw       json.RawMessage
}

func TextContent(text string) Content {
	return Content{Text: text}
}

func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts, multipart: true}
}

func (c Content) IsMultipart() bool { return c.multipart }

// IsText indica si el contenido es un string plano.
func (c Content) IsText() bool { return !c.multipart && c.raw == nil }

// AsParts devuelve una copia del contenido como secuencia de partes. El texto
// plano se envuelve en una única parte "text"; un valor desconocido distinto de
// null se conserva como parte opaca.
func (c Content) AsParts() []ContentPart {
	switch {
	case c.multipart:
		out := make([]ContentPart, len(c.Parts))
		copy(out, c.Parts)
		return out
	case c.raw != nil:
		if bytes.Equal(c.raw, []byte("null")) {
			return []ContentPart{}
		}
		return []ContentPart{{raw: c.raw}}
	default:
		return []ContentPart{TextPart(c.Text)}
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	*c = Content{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &c.Text)
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
		return nil
	default:
		c.raw = append(json.RawMessage(nil), trimmed...)
		return nil
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch {
	case c.raw != nil:
		return c.raw, nil
	case c.multipart:
		parts := c.Parts
		if parts == nil {
			parts = []ContentPart{}
		}
		return json.Marshal(parts)
	default:
		return json.Marshal(c.Text)
	}
}

// Message es un mensaje del transcript. Los campos que el filtro no usa
// (id, timestamp, files, ...) se conservan para devolver el payload intacto.
type Message struct {
	Role    Role
	Content Content

	hasRole       bool
	contentAbsent bool
	null          bool
	extra         map[string]json.RawMessage
}

func NewMessage(role Role, content Content) Message {
	return Message{Role: role, Content: content, hasRole: true}
}

// HasContent indica si el mensaje traía la clave "content".
func (m Message) HasContent() bool { return !m.contentAbsent }

// SetContent reemplaza el contenido del mensaje.
func (m *Message) SetContent(c Content) {
	m.Content = c
	m.contentAbsent = false
}

func (m *Message) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Message{contentAbsent: true, null: true}
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = Message{}

	if rawRole, ok := fields["role"]; ok {
		var role string
		if err := json.Unmarshal(rawRole, &role); err == nil {
			m.Role = Role(role)
			m.hasRole = true
			delete(fields, "role")
		}
	}

	if rawContent, ok := fields["content"]; ok {
		if err := json.Unmarshal(rawContent, &m.Content); err != nil {
			return err
		}
		delete(fields, "content")
	} else {
		m.contentAbsent = true
	}

	if len(fields) > 0 {
		m.extra = fields
	}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.null {
		return []byte("null"), nil
	}
	out := make(map[string]json.RawMessage, len(m.extra)+2)
	for k, v := range m.extra {
		out[k] = v
	}
	if m.hasRole || m.Role != "" {
		role, err := json.Marshal(string(m.Role))
		if err != nil {
			return nil, err
		}
		out["role"] = role
	}
	if !m.contentAbsent {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		out["content"] = content
	}
	return json.Marshal(out)
}

// Transcript es la conversación en orden de inserción.
type Transcript []Message
