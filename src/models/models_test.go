package models

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDummyModelEchoesLastLine(t *testing.T) {
	m := NewDummyModel("")
	out, err := m.Generate(context.Background(), "first line\n\nsummarize this conversation\n")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "summarize this conversation") {
		t.Fatalf("out = %q, want the last non-empty line echoed", out)
	}
}

func TestDummyModelEmptyPrompt(t *testing.T) {
	m := NewDummyModel("echo:")
	out, err := m.Generate(context.Background(), "\n\n")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "<empty prompt>") {
		t.Fatalf("out = %q", out)
	}
}

type countingModel struct {
	calls int
	err   error
}

func (m *countingModel) Generate(_ context.Context, prompt string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "response to " + prompt, nil
}

func TestCachedModelHitsCacheOnRepeat(t *testing.T) {
	inner := &countingModel{}
	m := NewCachedModel(inner, 8, time.Minute)

	first, err := m.Generate(context.Background(), "same prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := m.Generate(context.Background(), "same prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first != second {
		t.Fatalf("cached response differs: %q vs %q", first, second)
	}
	if inner.calls != 1 {
		t.Fatalf("inner called %d times, want 1", inner.calls)
	}
}

func TestCachedModelDoesNotCacheErrors(t *testing.T) {
	inner := &countingModel{err: errors.New("provider down")}
	m := NewCachedModel(inner, 8, time.Minute)

	if _, err := m.Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	out, err := m.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate after recovery: %v", err)
	}
	if out == "" {
		t.Fatal("empty response after recovery")
	}
	if inner.calls != 2 {
		t.Fatalf("inner called %d times, want 2", inner.calls)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider(context.Background(), "carrier-pigeon", "v1", ""); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewProviderDummy(t *testing.T) {
	m, err := NewProvider(context.Background(), "dummy", "", "")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, ok := m.(*DummyModel); !ok {
		t.Fatalf("m = %T, want *DummyModel", m)
	}
}
