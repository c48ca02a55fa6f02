package service

import (
	"strings"

	"memory-filter/internal/domain"
)

// InjectMemory agrega memoryText como nueva parte de texto al primer mensaje
// de sistema, o inserta un mensaje de sistema al inicio si no hay ninguno.
// Nunca quita ni reordena partes existentes.
func InjectMemory(transcript domain.Transcript, memoryText string) domain.Transcript {
	if strings.TrimSpace(memoryText) == "" {
		return transcript
	}
	part := domain.TextPart(memoryText)

	for i := range transcript {
		if transcript[i].Role != domain.RoleSystem {
			continue
		}
		var parts []domain.ContentPart
		if transcript[i].HasContent() {
			parts = transcript[i].Content.AsParts()
		}
		parts = append(parts, part)
		transcript[i].SetContent(domain.PartsContent(parts...))
		return transcript
	}

	system := domain.NewMessage(domain.RoleSystem, domain.PartsContent(part))
	return append(domain.Transcript{system}, transcript...)
}
