package domain

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Payload es el body que el pipeline del chat entrega al filtro. Solo se
// interpreta "messages"; el resto de los campos viaja sin modificarse.
type Payload struct {
	Messages Transcript

	hasMessages bool
	// undecoded marca un "messages" presente que no se pudo tipar; se
	// reemite tal cual desde extra.
	undecoded bool
	extra     map[string]json.RawMessage
}

func NewPayload(messages ...Message) *Payload {
	return &Payload{Messages: messages, hasMessages: true}
}

// Field devuelve un campo no interpretado del payload.
func (p *Payload) Field(key string) (json.RawMessage, bool) {
	v, ok := p.extra[key]
	return v, ok
}

// MessagesUndecoded indica que el payload trae "messages" pero no como una
// lista de mensajes válida. El filtro no debe tocar un payload así.
func (p *Payload) MessagesUndecoded() bool { return p.undecoded }

// ChatID devuelve el identificador de la conversación: metadata.chat_id o,
// en su defecto, chat_id en la raíz del payload.
func (p *Payload) ChatID() string {
	if meta, ok := p.extra["metadata"]; ok {
		if id := gjson.GetBytes(meta, "chat_id"); id.Type == gjson.String && id.Str != "" {
			return id.Str
		}
	}
	if raw, ok := p.extra["chat_id"]; ok {
		if id := gjson.ParseBytes(raw); id.Type == gjson.String {
			return id.Str
		}
	}
	return ""
}

// IsTask indica si el host marcó la llamada como tarea de fondo
// (generación de títulos, tags, etc.) mediante metadata.task.
func (p *Payload) IsTask() bool {
	meta, ok := p.extra["metadata"]
	if !ok {
		return false
	}
	task := gjson.GetBytes(meta, "task")
	switch task.Type {
	case gjson.String:
		return task.Str != ""
	case gjson.True:
		return true
	default:
		return false
	}
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = Payload{}

	if rawMessages, ok := fields["messages"]; ok && string(rawMessages) != "null" {
		var msgs Transcript
		if err := json.Unmarshal(rawMessages, &msgs); err == nil {
			p.Messages = msgs
			p.hasMessages = true
			delete(fields, "messages")
		} else {
			p.undecoded = true
		}
	}

	if len(fields) > 0 {
		p.extra = fields
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.extra)+1)
	for k, v := range p.extra {
		out[k] = v
	}
	if !p.undecoded && (p.hasMessages || p.Messages != nil) {
		msgs := p.Messages
		if msgs == nil {
			msgs = Transcript{}
		}
		raw, err := json.Marshal(msgs)
		if err != nil {
			return nil, err
		}
		out["messages"] = raw
	}
	return json.Marshal(out)
}
