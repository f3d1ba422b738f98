package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBackendClient(srv.URL+"/", 5*time.Second, zaptest.NewLogger(t))
}

func TestListAgents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list_agents" || r.URL.Query().Get("user_id") != "acct 1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"agents":[{"id":"a1","name":"Sam","avatar_url":"s.png","department":"Sales","helpdesk_platform":"zendesk"}]}`))
	})

	agents, err := c.ListAgents(context.Background(), "acct 1")
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "Sam" || agents[0].HelpdeskPlatform != "zendesk" {
		t.Fatalf("unexpected agents: %+v", agents)
	}
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat_widget" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.APIKey != "key" || req.Message != "hi" || len(req.History) != 1 || req.History[0].Role != "assistant" {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.Write([]byte(`{"response":"hello","agent":"Sam","avatar_url":"s.png"}`))
	})

	reply, err := c.SendMessage(context.Background(), ChatRequest{
		UserID:  "u1",
		APIKey:  "key",
		Message: "hi",
		History: []HistoryTurn{{Role: "assistant", Content: "greeting"}},
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Response != "hello" || reply.Agent != "Sam" || reply.AvatarURL != "s.png" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestSendMessageEmptyHistoryIsArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&raw)
		if string(raw["history"]) != "[]" {
			t.Errorf("expected empty history array, got %s", raw["history"])
		}
		w.Write([]byte(`{"response":"ok"}`))
	})

	if _, err := c.SendMessage(context.Background(), ChatRequest{Message: "hi"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
}

func TestSendMessageServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"llm unavailable"}`))
	})

	_, err := c.SendMessage(context.Background(), ChatRequest{Message: "hi"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", statusErr.StatusCode)
	}
	if err.Error() != "Server error 500: llm unavailable" {
		t.Errorf("unexpected error text %q", err.Error())
	}
}

func TestSendMessagePlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := c.SendMessage(context.Background(), ChatRequest{Message: "hi"})
	if err == nil || err.Error() != "Server error 403: forbidden" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSendMessageEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":""}`))
	})

	if _, err := c.SendMessage(context.Background(), ChatRequest{Message: "hi"}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestCreateTicket(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string id", `{"ticket_id":"T-9"}`, "T-9"},
		{"numeric id", `{"ticket_id":1042}`, "1042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var req TicketRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.AgentID != "a1" || req.Platform != "zoho desk" {
					t.Errorf("unexpected ticket request: %+v", req)
				}
				w.Write([]byte(tt.body))
			})

			id, err := c.CreateTicket(context.Background(), TicketRequest{AgentID: "a1", Platform: "zoho desk"})
			if err != nil {
				t.Fatalf("CreateTicket failed: %v", err)
			}
			if id != tt.want {
				t.Errorf("expected ticket %q, got %q", tt.want, id)
			}
		})
	}
}

func TestCreateTicketMissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	if _, err := c.CreateTicket(context.Background(), TicketRequest{}); err == nil {
		t.Fatal("expected error for missing ticket_id")
	}
}
