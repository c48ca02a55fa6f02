package memoryapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memory-filter/internal/domain"
)

func TestFetchURL(t *testing.T) {
	cases := []struct {
		name    string
		base    string
		userID  string
		exclude string
		want    string
	}{
		{"sin chat", "http://svc/memory", "user@example.com", "", "http://svc/memory/user@example.com"},
		{"barra final", "http://svc/memory/", "u1", "", "http://svc/memory/u1"},
		{"con chat", "http://svc/memory", "u1", "chat 1&x", "http://svc/memory/u1?excludeChatId=chat+1%26x"},
		{"user con barra", "http://svc/memory", "a/b", "", "http://svc/memory/a%2Fb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FetchURL(tc.base, tc.userID, tc.exclude); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestHTTPClientFetch_ReturnsXML(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Get("excludeChatId")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"xml":"<conversationHistory/>"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/memory", "key-1", WithHTTPClient(srv.Client()))
	xml, err := c.Fetch(context.Background(), "user@example.com", "chat-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if xml != "<conversationHistory/>" {
		t.Fatalf("unexpected xml: %q", xml)
	}
	if gotPath != "/memory/user@example.com" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotQuery != "chat-9" {
		t.Fatalf("unexpected excludeChatId: %q", gotQuery)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestHTTPClientFetch_OmitsQueryWithoutChat(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", WithHTTPClient(srv.Client()))
	xml, err := c.Fetch(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if xml != "" {
		t.Fatalf("expected empty memory for missing field, got %q", xml)
	}
	if rawQuery != "" {
		t.Fatalf("expected no query, got %q", rawQuery)
	}
}

func TestHTTPClientFetch_Failures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"status 500", http.StatusInternalServerError, `{"error":"boom"}`, ErrTransport},
		{"status 404", http.StatusNotFound, ``, ErrTransport},
		{"json invalido", http.StatusOK, `<html>`, ErrMalformedResponse},
		{"no es objeto", http.StatusOK, `["x"]`, ErrMalformedResponse},
		{"xml no string", http.StatusOK, `{"xml": 12}`, ErrMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, "k", WithHTTPClient(srv.Client()))
			xml, err := c.Fetch(context.Background(), "u1", "")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if xml != "" {
				t.Fatalf("expected empty memory on failure, got %q", xml)
			}
		})
	}
}

func TestHTTPClientFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPClient(srv.URL, "k", WithHTTPClient(srv.Client()), WithTimeouts(50*time.Millisecond, 0))
	_, err := c.Fetch(context.Background(), "u1", "")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTPClientPost_SendsRecord(t *testing.T) {
	var (
		gotMethod string
		gotCT     string
		gotAuth   string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", WithHTTPClient(srv.Client()))
	pair := domain.TurnPair{UserMessage: "hi", AgentMessage: "hello"}
	if err := c.Post(context.Background(), "user@example.com", pair, "chat-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost || gotCT != "application/json" || gotAuth != "Bearer secret" {
		t.Fatalf("unexpected request: method=%s ct=%s auth=%s", gotMethod, gotCT, gotAuth)
	}
	want := map[string]any{"userId": "user@example.com", "userMessage": "hi", "agentMessage": "hello", "chatId": "chat-1"}
	if len(gotBody) != len(want) {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	for k, v := range want {
		if gotBody[k] != v {
			t.Fatalf("expected %s=%v, got %v", k, v, gotBody[k])
		}
	}
}

func TestHTTPClientPost_OmitsEmptyChatID(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", WithHTTPClient(srv.Client()))
	if err := c.Post(context.Background(), "u1", domain.TurnPair{UserMessage: "a", AgentMessage: "b"}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gotBody["chatId"]; ok {
		t.Fatalf("expected chatId to be omitted, got %+v", gotBody)
	}
}

func TestHTTPClientPost_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", WithHTTPClient(srv.Client()))
	err := c.Post(context.Background(), "u1", domain.TurnPair{UserMessage: "a", AgentMessage: "b"}, "")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestHTTPClientPost_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, "k")
	err := c.Post(context.Background(), "u1", domain.TurnPair{}, "")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}
