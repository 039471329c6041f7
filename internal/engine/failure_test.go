package engine

import (
	"errors"
	"fmt"
	"testing"

	"gend/pkg/types"
)

func TestRetryableKinds(t *testing.T) {
	retryable := []FailureKind{RateLimited, QuotaExceeded, Overloaded, Timeout,
		CapacityExceeded, QueueFull, LoadFailed}
	for _, k := range retryable {
		if !Retryable(k) {
			t.Errorf("Retryable(%s) = false", k)
		}
	}
	terminal := []FailureKind{AuthFailed, InvalidRequest, NotFound}
	for _, k := range terminal {
		if Retryable(k) {
			t.Errorf("Retryable(%s) = true", k)
		}
	}
}

func TestFailureErrorString(t *testing.T) {
	err := Fail(RateLimited, "gpt-cloud", "slow down")
	if got := err.Error(); got != "rate_limited: gpt-cloud: slow down" {
		t.Fatalf("error string %q", got)
	}
	if got := Fail(QueueFull, "", "").Error(); got != "queue_full" {
		t.Fatalf("bare kind string %q", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Overloaded, "e1", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause not reachable via errors.Is")
	}
	f, ok := AsFailure(fmt.Errorf("invoke: %w", err))
	if !ok || f.Kind != Overloaded || f.Engine != "e1" {
		t.Fatalf("AsFailure through wrapping: ok=%v %+v", ok, f)
	}
}

func TestIsKind(t *testing.T) {
	err := Fail(NotFound, "ghost", "not in catalog")
	if !IsKind(err, NotFound) || IsKind(err, Timeout) {
		t.Fatalf("IsKind misclassified %v", err)
	}
	if IsKind(errors.New("plain"), NotFound) {
		t.Fatal("IsKind matched an unclassified error")
	}
}

func TestFlattenPrompt(t *testing.T) {
	if got := flattenPrompt(Request{Prompt: "solo"}); got != "solo" {
		t.Fatalf("no-turns prompt %q", got)
	}
	full := flattenPrompt(Request{
		Prompt: "and now?",
		Turns: []types.Turn{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})
	want := "User: hi\nAssistant: hello\nUser: and now?\nAssistant:"
	if full != want {
		t.Fatalf("flattened prompt:\n%q\nwant\n%q", full, want)
	}
}
