package memoryapi

import (
	"context"

	"memory-filter/internal/domain"
)

// MockClient permite tests sin un Memory Service real.
type MockClient struct {
	Memory   string
	FetchErr error
	PostErr  error

	FetchCalls    int
	LastUserID    string
	LastExcludeID string
	Posted        []domain.MemoryRecord
}

func (m *MockClient) Fetch(_ context.Context, userID, excludeChatID string) (string, error) {
	m.FetchCalls++
	m.LastUserID = userID
	m.LastExcludeID = excludeChatID
	return m.Memory, m.FetchErr
}

func (m *MockClient) Post(_ context.Context, userID string, pair domain.TurnPair, chatID string) error {
	m.Posted = append(m.Posted, domain.NewMemoryRecord(userID, pair, chatID))
	return m.PostErr
}

var _ Client = (*MockClient)(nil)
