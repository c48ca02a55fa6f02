package service

import "memory-filter/internal/domain"

// ExtractPairs recorre el transcript y devuelve los pares usuario→asistente
// estrictamente adyacentes, en orden. Un mensaje de usuario que no va seguido
// de una respuesta del asistente se descarta.
func ExtractPairs(transcript domain.Transcript) []domain.TurnPair {
	var pairs []domain.TurnPair
	for i := 0; i < len(transcript); {
		if transcript[i].Role != domain.RoleUser {
			i++
			continue
		}
		if i+1 < len(transcript) && transcript[i+1].Role == domain.RoleAssistant {
			pairs = append(pairs, domain.TurnPair{
				UserMessage:  NormalizeContent(transcript[i].Content),
				AgentMessage: NormalizeContent(transcript[i+1].Content),
			})
			i += 2
			continue
		}
		i++
	}
	return pairs
}

// LatestPair devuelve el intercambio más reciente del transcript.
func LatestPair(transcript domain.Transcript) (domain.TurnPair, bool) {
	pairs := ExtractPairs(transcript)
	if len(pairs) == 0 {
		return domain.TurnPair{}, false
	}
	return pairs[len(pairs)-1], true
}
