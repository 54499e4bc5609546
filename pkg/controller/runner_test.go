package controller

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/playctl/playctl/pkg/protocol"
)

func TestRunnerStopsOnClientDisconnected(t *testing.T) {
	out := make(chan protocol.Message, 32)
	inbound := make(chan protocol.Message, 8)
	c := New(NewState(), out, slog.New(slog.DiscardHandler))
	c.Headless = true
	c.sleep = func(time.Duration) {}
	r := NewRunner(c, inbound)

	inbound <- protocol.Handshake{}
	inbound <- protocol.TaskStart{Name: "a"}
	inbound <- protocol.TaskResult{Name: "a", Host: "web1"}
	inbound <- protocol.ClientDisconnected{}

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on ClientDisconnected")
	}

	if c.State.Connected {
		t.Error("still marked connected after disconnect")
	}
	if len(c.State.History) != 1 {
		t.Errorf("got %d history entries, want 1", len(c.State.History))
	}
}

func TestRunnerStopsOnClosedInbound(t *testing.T) {
	out := make(chan protocol.Message, 8)
	inbound := make(chan protocol.Message)
	c := New(NewState(), out, slog.New(slog.DiscardHandler))
	r := NewRunner(c, inbound)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	close(inbound)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on closed inbound channel")
	}
}

func TestRunnerHandlesInjectedAnalysis(t *testing.T) {
	out := make(chan protocol.Message, 32)
	inbound := make(chan protocol.Message, 8)
	c := New(NewState(), out, slog.New(slog.DiscardHandler))
	r := NewRunner(c, inbound)

	c.Inject(protocol.AiAnalysis{Task: "Deploy"})
	inbound <- protocol.ClientDisconnected{}

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerReturnsOnContextCancel(t *testing.T) {
	inbound := make(chan protocol.Message)
	c := New(NewState(), make(chan protocol.Message, 8), slog.New(slog.DiscardHandler))
	r := NewRunner(c, inbound)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}
}
