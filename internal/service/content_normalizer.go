package service

import (
	"strings"

	"memory-filter/internal/domain"
)

// NormalizeContent convierte el contenido de un mensaje en texto plano.
// Las partes que no son texto se ignoran; nunca falla.
func NormalizeContent(content domain.Content) string {
	switch {
	case content.IsMultipart():
		pieces := make([]string, 0, len(content.Parts))
		for _, part := range content.Parts {
			if text, ok := part.TextValue(); ok {
				pieces = append(pieces, text)
			}
		}
		return strings.TrimSpace(strings.Join(pieces, " "))
	case content.IsText():
		return strings.TrimSpace(content.Text)
	default:
		return ""
	}
}
