package domain

import "strings"

// DefaultMemoryAPIBaseURL apunta a un Memory Service corriendo junto al host.
const DefaultMemoryAPIBaseURL = "http://host.docker.internal:3000/memory"

// MaskedAPIKey reemplaza la API key cuando los ajustes se exponen.
const MaskedAPIKey = "********"

// Valves son los ajustes mutables del filtro. Se leen en cada llamada.
type Valves struct {
	// Priority ordena los filtros del host; menor corre antes.
	Priority   int    `json:"priority"`
	APIKey     string `json:"api_key"`
	APIBaseURL string `json:"api_base_url"`
	// Debug agrega el payload serializado como mensaje del asistente en outlet.
	Debug bool `json:"debug"`
}

// MissingSetting devuelve el nombre del primer ajuste obligatorio vacío.
func (v Valves) MissingSetting() string {
	if strings.TrimSpace(v.APIKey) == "" {
		return "API key"
	}
	if strings.TrimSpace(v.APIBaseURL) == "" {
		return "API base URL"
	}
	return ""
}

// Masked devuelve una copia apta para exponer, sin la API key.
func (v Valves) Masked() Valves {
	if v.APIKey != "" {
		v.APIKey = MaskedAPIKey
	}
	return v
}
