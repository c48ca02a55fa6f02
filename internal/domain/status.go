package domain

// StatusEvent es el evento de estado que se reporta al host durante inlet/outlet.
type StatusEvent struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
	Hidden      bool   `json:"hidden"`
}

// StatusEnvelope es la forma en que el host recibe los eventos.
type StatusEnvelope struct {
	Type string      `json:"type"`
	Data StatusEvent `json:"data"`
}

func (e StatusEvent) Envelope() StatusEnvelope {
	return StatusEnvelope{Type: "status", Data: e}
}
