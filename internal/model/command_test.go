package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr bool
	}{
		{"toggle", `{"type":"TOGGLE"}`, Command{Type: CommandToggle}, false},
		{"send", `{"type":"SEND","text":"hello"}`, Command{Type: CommandSend, Text: "hello"}, false},
		{"confirm", `{"type":"CONFIRM","confirmed":true}`, Command{Type: CommandConfirm, Confirmed: true}, false},
		{"heartbeat", `{"type":"HEARTBEAT"}`, Command{Type: CommandHeartbeat}, false},
		{"send without text", `{"type":"SEND"}`, Command{}, true},
		{"prechat without customer", `{"type":"PRECHAT"}`, Command{}, true},
		{"missing type", `{"text":"hi"}`, Command{}, true},
		{"unknown type", `{"type":"CHAT"}`, Command{}, true},
		{"not json", `hello`, Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedCommand) {
					t.Fatalf("expected ErrMalformedCommand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Type != tt.want.Type || got.Text != tt.want.Text || got.Confirmed != tt.want.Confirmed {
				t.Errorf("ParseCommand() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCommandPreChat(t *testing.T) {
	input := `{"type":"PRECHAT","customer":{"name":"Ana","email":"ana@x.com","language":"Spanish","department":"Sales"}}`

	cmd, err := ParseCommand([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := CustomerInfo{Name: "Ana", Email: "ana@x.com", Language: "Spanish", Department: "Sales"}
	if cmd.Customer == nil || *cmd.Customer != want {
		t.Errorf("customer = %+v, want %+v", cmd.Customer, want)
	}
}

func TestMessageJSONRoundTrip(t *testing.T) {
	customer := CustomerInfo{Name: "Ana", Email: "ana@x.com", Language: "Spanish", Department: "Sales"}
	orig := NewAgentMessage("Hola", customer, AgentInfo{ID: "a1", Name: "Sam", AvatarURL: "sam.png"})

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got != orig {
		t.Errorf("round trip = %+v, want %+v", got, orig)
	}
	if got.Customer() != customer || got.Agent().Name != "Sam" {
		t.Errorf("snapshots lost: %+v", got)
	}
}

func TestMessageRejectsUnknownRole(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"text":"x","role":"bot"}`), &m); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"ana@x.com":     true,
		"a.b@sub.x.org": true,
		"ana@x":         false,
		"ana x@y.com":   false,
		"@x.com":        false,
		"":              false,
	}
	for email, want := range cases {
		if got := ValidEmail(email); got != want {
			t.Errorf("ValidEmail(%q) = %v, want %v", email, got, want)
		}
	}
}
