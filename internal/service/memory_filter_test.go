package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"memory-filter/internal/domain"
	"memory-filter/internal/memoryapi"
)

var configuredValves = domain.Valves{APIKey: "k", APIBaseURL: "http://svc/memory"}

func newMockFilter(valves domain.Valves, client *memoryapi.MockClient) *MemoryFilter {
	return NewMemoryFilter(zap.NewNop(), NewMemoryValvesStore(valves), func(domain.Valves) memoryapi.Client {
		return client
	})
}

func mustPayload(t *testing.T, raw string) *domain.Payload {
	t.Helper()
	var p domain.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return &p
}

func marshalPayload(t *testing.T, p *domain.Payload) string {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(raw)
}

var alice = domain.User{ID: "u1", Email: "alice@example.com"}

const exchangePayload = `{
	"model": "m",
	"metadata": {"chat_id": "chat-1"},
	"messages": [
		{"role": "system", "content": "S"},
		{"role": "user", "content": "a"},
		{"role": "assistant", "content": "b"}
	]
}`

func TestMemoryFilterInlet_InjectsMemory(t *testing.T) {
	client := &memoryapi.MockClient{Memory: "<conversationHistory>x</conversationHistory>"}
	filter := newMockFilter(configuredValves, client)
	sink := &recordingSink{}

	payload := mustPayload(t, exchangePayload)
	out := filter.Inlet(context.Background(), Invocation{User: alice, ChatID: "chat-1", Status: sink}, payload)

	if client.LastUserID != "alice@example.com" || client.LastExcludeID != "chat-1" {
		t.Fatalf("unexpected fetch args: user=%q exclude=%q", client.LastUserID, client.LastExcludeID)
	}
	parts := out.Messages[0].Content.Parts
	if len(parts) != 2 || parts[1].Text != client.Memory {
		t.Fatalf("expected memory appended to system message, got %+v", parts)
	}
	if len(sink.events) != 1 || sink.events[0].Description != "Memory loaded" || sink.events[0].Hidden {
		t.Fatalf("unexpected status events: %+v", sink.events)
	}
	if raw, ok := out.Field("model"); !ok || string(raw) != `"m"` {
		t.Fatalf("expected unknown fields preserved, got %s", raw)
	}
}

func TestMemoryFilterInlet_EmptyMemory(t *testing.T) {
	client := &memoryapi.MockClient{Memory: "  "}
	filter := newMockFilter(configuredValves, client)
	sink := &recordingSink{}

	payload := mustPayload(t, exchangePayload)
	before := marshalPayload(t, payload)
	out := filter.Inlet(context.Background(), Invocation{User: alice, Status: sink}, payload)

	if marshalPayload(t, out) != before {
		t.Fatalf("expected payload unchanged")
	}
	if len(sink.events) != 1 || !sink.events[0].Hidden {
		t.Fatalf("expected a single hidden status, got %+v", sink.events)
	}
}

func TestMemoryFilterInlet_FetchFailure(t *testing.T) {
	client := &memoryapi.MockClient{FetchErr: errors.New("connection refused")}
	filter := newMockFilter(configuredValves, client)
	sink := &recordingSink{}

	payload := mustPayload(t, exchangePayload)
	before := marshalPayload(t, payload)
	out := filter.Inlet(context.Background(), Invocation{User: alice, Status: sink}, payload)

	if marshalPayload(t, out) != before {
		t.Fatalf("expected payload unchanged on failure")
	}
	if len(sink.events) != 1 || !strings.HasPrefix(sink.events[0].Description, "Memory unavailable: ") || sink.events[0].Hidden {
		t.Fatalf("expected visible failure status, got %+v", sink.events)
	}
}

func TestMemoryFilterInlet_Skips(t *testing.T) {
	t.Run("tarea de fondo", func(t *testing.T) {
		client := &memoryapi.MockClient{Memory: "m"}
		sink := &recordingSink{}
		payload := mustPayload(t, exchangePayload)
		before := marshalPayload(t, payload)

		out := newMockFilter(configuredValves, client).Inlet(context.Background(), Invocation{User: alice, Task: true, Status: sink}, payload)
		if client.FetchCalls != 0 || len(sink.events) != 0 || marshalPayload(t, out) != before {
			t.Fatalf("expected task invocation to be skipped")
		}
	})

	t.Run("sin usuario", func(t *testing.T) {
		client := &memoryapi.MockClient{Memory: "m"}
		sink := &recordingSink{}
		payload := mustPayload(t, exchangePayload)
		before := marshalPayload(t, payload)

		out := newMockFilter(configuredValves, client).Inlet(context.Background(), Invocation{User: domain.User{Email: " "}, Status: sink}, payload)
		if client.FetchCalls != 0 || len(sink.events) != 0 || marshalPayload(t, out) != before {
			t.Fatalf("expected no-op without user")
		}
	})

	t.Run("sin configuracion", func(t *testing.T) {
		client := &memoryapi.MockClient{Memory: "m"}
		sink := &recordingSink{}
		payload := mustPayload(t, exchangePayload)

		newMockFilter(domain.Valves{APIBaseURL: "http://svc"}, client).Inlet(context.Background(), Invocation{User: alice, Status: sink}, payload)
		if client.FetchCalls != 0 {
			t.Fatalf("expected no fetch without api key")
		}
		if len(sink.events) != 1 || sink.events[0].Description != "Memory disabled: missing API key" {
			t.Fatalf("unexpected status: %+v", sink.events)
		}
	})

	t.Run("payload nil", func(t *testing.T) {
		if out := newMockFilter(configuredValves, &memoryapi.MockClient{}).Inlet(context.Background(), Invocation{User: alice}, nil); out != nil {
			t.Fatalf("expected nil payload back")
		}
	})

	t.Run("sin sink de estado", func(t *testing.T) {
		client := &memoryapi.MockClient{Memory: "m"}
		out := newMockFilter(configuredValves, client).Inlet(context.Background(), Invocation{User: alice}, mustPayload(t, exchangePayload))
		if len(out.Messages[0].Content.Parts) != 2 {
			t.Fatalf("expected memory injected without a status sink")
		}
	})
}

func TestMemoryFilterOutlet_PostsLatestPair(t *testing.T) {
	client := &memoryapi.MockClient{}
	filter := newMockFilter(configuredValves, client)
	sink := &recordingSink{}

	payload := mustPayload(t, `{"messages":[
		{"role":"user","content":"a"},{"role":"assistant","content":"b"},
		{"role":"user","content":[{"type":"text","text":"c"}]},{"role":"assistant","content":"d"}
	]}`)
	before := marshalPayload(t, payload)
	out := filter.Outlet(context.Background(), Invocation{User: alice, ChatID: "chat-1", Status: sink}, payload)

	want := domain.MemoryRecord{UserID: "alice@example.com", UserMessage: "c", AgentMessage: "d", ChatID: "chat-1"}
	if len(client.Posted) != 1 || client.Posted[0] != want {
		t.Fatalf("expected one record %+v, got %+v", want, client.Posted)
	}
	if marshalPayload(t, out) != before {
		t.Fatalf("expected payload unchanged")
	}
	if len(sink.events) != 1 || sink.events[0].Description != "Memory saved" || !sink.events[0].Hidden {
		t.Fatalf("unexpected status events: %+v", sink.events)
	}
}

func TestMemoryFilterOutlet_Skips(t *testing.T) {
	cases := []struct {
		name     string
		valves   domain.Valves
		user     domain.User
		payload  string
		wantDesc string
	}{
		{"sin par", configuredValves, alice, `{"messages":[{"role":"user","content":"a"}]}`, ""},
		{"sin usuario", configuredValves, domain.User{}, exchangePayload, ""},
		{"sin base url", domain.Valves{APIKey: "k"}, alice, exchangePayload, "Memory disabled: missing API base URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &memoryapi.MockClient{}
			sink := &recordingSink{}
			newMockFilter(tc.valves, client).Outlet(context.Background(), Invocation{User: tc.user, Status: sink}, mustPayload(t, tc.payload))
			if len(client.Posted) != 0 {
				t.Fatalf("expected no post, got %+v", client.Posted)
			}
			if tc.wantDesc == "" && len(sink.events) != 0 {
				t.Fatalf("expected no status, got %+v", sink.events)
			}
			if tc.wantDesc != "" && (len(sink.events) != 1 || sink.events[0].Description != tc.wantDesc) {
				t.Fatalf("expected %q, got %+v", tc.wantDesc, sink.events)
			}
		})
	}
}

func TestMemoryFilterOutlet_DebugEcho(t *testing.T) {
	valves := configuredValves
	valves.Debug = true
	client := &memoryapi.MockClient{}

	payload := mustPayload(t, exchangePayload)
	out := newMockFilter(valves, client).Outlet(context.Background(), Invocation{User: alice}, payload)

	if len(out.Messages) != 4 {
		t.Fatalf("expected debug echo appended, got %d messages", len(out.Messages))
	}
	echo := out.Messages[3]
	if echo.Role != domain.RoleAssistant || !strings.Contains(echo.Content.Text, `"model":"m"`) {
		t.Fatalf("unexpected debug echo: %+v", echo)
	}
}

// Un Memory Service real detrás de httptest: el outlet hace exactamente un
// POST y un 500 se reporta sin alterar el payload.
func TestMemoryFilterOutlet_AgainstHTTPService(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
		status = http.StatusCreated
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		code := status
		mu.Unlock()
		w.WriteHeader(code)
	}))
	defer srv.Close()

	valves := domain.Valves{APIKey: "k", APIBaseURL: srv.URL + "/memory"}
	filter := NewMemoryFilter(zap.NewNop(), NewMemoryValvesStore(valves), func(v domain.Valves) memoryapi.Client {
		return memoryapi.NewHTTPClient(v.APIBaseURL, v.APIKey, memoryapi.WithHTTPClient(srv.Client()))
	})

	sink := &recordingSink{}
	filter.Outlet(context.Background(), Invocation{User: alice, ChatID: "chat-1", Status: sink}, mustPayload(t, exchangePayload))

	if len(bodies) != 1 {
		t.Fatalf("expected exactly one POST, got %d", len(bodies))
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(bodies[0]), &record); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if record["userId"] != "alice@example.com" || record["userMessage"] != "a" || record["agentMessage"] != "b" || record["chatId"] != "chat-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if len(sink.events) != 1 || sink.events[0].Description != "Memory saved" || !sink.events[0].Hidden {
		t.Fatalf("unexpected status events: %+v", sink.events)
	}

	mu.Lock()
	status = http.StatusInternalServerError
	mu.Unlock()

	sink = &recordingSink{}
	payload := mustPayload(t, exchangePayload)
	before := marshalPayload(t, payload)
	out := filter.Outlet(context.Background(), Invocation{User: alice, Status: sink}, payload)

	if marshalPayload(t, out) != before {
		t.Fatalf("expected payload unchanged after failure")
	}
	if len(sink.events) != 1 || !strings.HasPrefix(sink.events[0].Description, "Memory failed: ") || sink.events[0].Hidden {
		t.Fatalf("expected visible failure status, got %+v", sink.events)
	}
}

func TestMemoryFilter_ValvesReadPerCall(t *testing.T) {
	store := NewMemoryValvesStore(domain.Valves{})
	var seen []domain.Valves
	filter := NewMemoryFilter(zap.NewNop(), store, func(v domain.Valves) memoryapi.Client {
		seen = append(seen, v)
		return &memoryapi.MockClient{}
	})

	filter.Inlet(context.Background(), Invocation{User: alice}, mustPayload(t, exchangePayload))
	if len(seen) != 0 {
		t.Fatalf("expected no client before configuration")
	}

	if err := store.Update(context.Background(), configuredValves); err != nil {
		t.Fatalf("update: %v", err)
	}
	filter.Inlet(context.Background(), Invocation{User: alice}, mustPayload(t, exchangePayload))
	if len(seen) != 1 || seen[0] != configuredValves {
		t.Fatalf("expected updated valves on next call, got %+v", seen)
	}
}

func TestMemoryFilter_UndecodedMessagesUntouched(t *testing.T) {
	raw := `{"metadata":{"chat_id":"c1"},"messages":[{"role":"system","content":"S"},{"role":"user","content":"a"},{"role":"assistant","content":"b"},7]}`
	client := &memoryapi.MockClient{Memory: "M"}
	filter := newMockFilter(configuredValves, client)

	sink := &recordingSink{}
	payload := mustPayload(t, raw)
	out := filter.Inlet(context.Background(), Invocation{User: alice, ChatID: "c1", Status: sink}, payload)
	if !jsonEqual(t, marshalPayload(t, out), raw) {
		t.Fatalf("expected inlet to leave payload intact, got %s", marshalPayload(t, out))
	}

	payload = mustPayload(t, raw)
	out = filter.Outlet(context.Background(), Invocation{User: alice, ChatID: "c1", Status: sink}, payload)
	if !jsonEqual(t, marshalPayload(t, out), raw) {
		t.Fatalf("expected outlet to leave payload intact, got %s", marshalPayload(t, out))
	}

	if client.FetchCalls != 0 || len(client.Posted) != 0 || len(sink.events) != 0 {
		t.Fatalf("expected no memory calls, got fetch=%d posted=%d events=%+v", client.FetchCalls, len(client.Posted), sink.events)
	}
}
