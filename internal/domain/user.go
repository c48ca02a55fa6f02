package domain

import "strings"

// User describe al usuario autenticado que el host adjunta a cada llamada.
type User struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// MemoryUserID es el identificador estable con el que se guardan las memorias.
func (u User) MemoryUserID() string {
	return strings.TrimSpace(u.Email)
}
