package widget

import (
	"errors"
	"testing"
	"time"

	"github.com/supportbot/chatwidget-go/internal/client"
	"github.com/supportbot/chatwidget-go/internal/model"
)

func TestTranscript(t *testing.T) {
	sam := model.AgentInfo{ID: "a1", Name: "Sam"}
	msgs := []model.Message{
		model.NewAgentMessage("Hi", ana, sam),
		model.NewUserMessage("Where is my order?", ana),
		model.NewSystemMessage("Error: timeout"),
		model.NewAgentMessage("Checking", ana, model.AgentInfo{}),
	}

	got := Transcript(msgs)
	want := "Sam: Hi\nUser: Where is my order?\nAgent: Checking"
	if got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
	if Transcript(nil) != "" {
		t.Error("empty transcript expected for no messages")
	}
}

func TestWireHistorySkipsSystemMessages(t *testing.T) {
	msgs := []model.Message{
		model.NewUserMessage("hi", ana),
		model.NewSystemMessage("notice"),
		model.NewAgentMessage("hello", ana, model.AgentInfo{Name: "Sam"}),
	}

	turns := wireHistory(msgs)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %+v", turns)
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("unexpected roles %+v", turns)
	}
	if wireHistory(nil) == nil {
		t.Error("history must encode as an empty list, not null")
	}
}

func TestTicketNotice(t *testing.T) {
	tests := []struct {
		name string
		id   string
		err  error
		want string
	}{
		{"created", "T-9", nil, "Session ended. Ticket created: T-9"},
		{"server detail", "", &client.StatusError{StatusCode: 422, Detail: "bad platform"}, "Failed to create ticket: bad platform"},
		{"network", "", errors.New("connection refused"), "Error creating ticket: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ticketNotice(tt.id, tt.err); got != tt.want {
				t.Errorf("ticketNotice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		5 * time.Minute:        "5 minutes",
		time.Minute:            "1 minute",
		90 * time.Second:       "90 seconds",
		150 * time.Millisecond: "150ms",
	}
	for d, want := range tests {
		if got := humanDuration(d); got != want {
			t.Errorf("humanDuration(%s) = %q, want %q", d, got, want)
		}
	}
}
