package models

import (
	"errors"
	"testing"
)

func TestPlanAnswerFrozenAfterFinish(t *testing.T) {
	p := Plan{Name: "p", Status: PlanPending}
	if err := p.AppendAnswer("a"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := p.AppendAnswer("b"); err != nil {
		t.Fatalf("append: %v", err)
	}
	p.Finish()
	if err := p.AppendAnswer("c"); !errors.Is(err, ErrPlanFinished) {
		t.Fatalf("expected ErrPlanFinished, got %v", err)
	}
	if err := p.SetAnswer(UnknownAnswer); !errors.Is(err, ErrPlanFinished) {
		t.Fatalf("expected ErrPlanFinished, got %v", err)
	}
	if p.Answer != "ab" {
		t.Fatalf("answer mutated after finish: %q", p.Answer)
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]Role{
		"human":     RoleUser,
		"user":      RoleUser,
		"ai":        RoleAssistant,
		"Assistant": RoleAssistant,
		"":          RoleUser,
	}
	for in, want := range cases {
		if got := NormalizeRole(in); got != want {
			t.Fatalf("NormalizeRole(%q)=%q want %q", in, got, want)
		}
	}
}
