package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModelFinishesOnDone(t *testing.T) {
	m := model{title: "migrate up", started: time.Now()}

	next, cmd := m.Update(doneMsg{details: []string{"schema migration applied"}})
	if cmd == nil {
		t.Fatal("expected quit command after completion")
	}
	view := next.View()
	if !strings.Contains(view, "OK") || !strings.Contains(view, "schema migration applied") {
		t.Fatalf("unexpected success view %q", view)
	}

	next, _ = m.Update(doneMsg{err: errors.New("db down")})
	if view := next.View(); !strings.Contains(view, "FAILED") || !strings.Contains(view, "db down") {
		t.Fatalf("unexpected failure view %q", view)
	}
}

func TestModelTicksWhileRunning(t *testing.T) {
	start := time.Now()
	m := model{title: "seed account", started: start}
	next, cmd := m.Update(tickMsg(start.Add(1500 * time.Millisecond)))
	if cmd == nil {
		t.Fatal("expected another tick while running")
	}
	if view := next.View(); !strings.Contains(view, "running... 1.5s") {
		t.Fatalf("unexpected running view %q", view)
	}

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if next.(model).err == nil {
		t.Fatal("expected ctrl+c to record cancellation")
	}
}
