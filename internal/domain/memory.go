package domain

// TurnPair es un mensaje de usuario junto con la respuesta del asistente que
// lo sigue inmediatamente en el transcript.
type TurnPair struct {
	UserMessage  string `json:"userMessage"`
	AgentMessage string `json:"agentMessage"`
}

// MemoryRecord es el body que se envía al Memory Service por cada outlet.
type MemoryRecord struct {
	UserID       string `json:"userId"`
	UserMessage  string `json:"userMessage"`
	AgentMessage string `json:"agentMessage"`
	ChatID       string `json:"chatId,omitempty"`
}

// NewMemoryRecord arma el registro a persistir para un par.
func NewMemoryRecord(userID string, pair TurnPair, chatID string) MemoryRecord {
	return MemoryRecord{
		UserID:       userID,
		UserMessage:  pair.UserMessage,
		AgentMessage: pair.AgentMessage,
		ChatID:       chatID,
	}
}
