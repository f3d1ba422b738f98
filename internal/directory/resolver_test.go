package directory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/supportbot/chatwidget-go/internal/model"
	"go.uber.org/zap/zaptest"
)

type fakeLister struct {
	agents []model.AgentRecord
	err    error
}

func (f fakeLister) ListAgents(ctx context.Context, userID string) ([]model.AgentRecord, error) {
	return f.agents, f.err
}

func TestResolveFiltersDeclaredAgents(t *testing.T) {
	lister := fakeLister{agents: []model.AgentRecord{
		{ID: "a1", Name: "Sam", Department: "Sales"},
		{ID: "a2", Name: "Kim", Department: "Billing"},
		{ID: "a3", Name: "Lee", Department: "Sales"},
		{ID: "a4", Name: "Max"},
	}}
	r := NewResolver(lister, zaptest.NewLogger(t))

	dir, err := r.Resolve(context.Background(), "u1", []string{"a3", "a1", "a4"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(dir.Agents) != 3 {
		t.Fatalf("expected 3 agents, got %+v", dir.Agents)
	}
	if !reflect.DeepEqual(dir.Departments, []string{"Sales", "General"}) {
		t.Fatalf("unexpected departments %v", dir.Departments)
	}
	if a, ok := dir.AgentFor("Sales"); !ok || a.Name != "Sam" {
		t.Errorf("expected first Sales agent Sam, got %+v", a)
	}
	if _, ok := dir.AgentFor("Billing"); ok {
		t.Error("undeclared agent must not be exposed")
	}
	if a, ok := dir.AgentFor("General"); !ok || a.ID != "a4" {
		t.Errorf("expected unlabeled agent under General, got %+v", a)
	}
}

func TestResolveDegradesOnError(t *testing.T) {
	r := NewResolver(fakeLister{err: errors.New("connection refused")}, zaptest.NewLogger(t))

	dir, err := r.Resolve(context.Background(), "u1", []string{"a1"})
	var dirErr *DirectoryError
	if !errors.As(err, &dirErr) {
		t.Fatalf("expected DirectoryError, got %v", err)
	}
	if len(dir.Agents) != 0 || !reflect.DeepEqual(dir.Departments, []string{"General"}) {
		t.Fatalf("expected fallback directory, got %+v", dir)
	}
}

func TestResolveDegradesOnEmptyMatch(t *testing.T) {
	lister := fakeLister{agents: []model.AgentRecord{{ID: "a1", Department: "Sales"}}}
	r := NewResolver(lister, zaptest.NewLogger(t))

	dir, err := r.Resolve(context.Background(), "u1", []string{"zz"})
	if !errors.Is(err, ErrNoMatchingAgents) {
		t.Fatalf("expected ErrNoMatchingAgents, got %v", err)
	}
	if !dir.HasDepartment("General") || dir.HasDepartment("Sales") {
		t.Fatalf("expected fallback departments, got %v", dir.Departments)
	}
}
