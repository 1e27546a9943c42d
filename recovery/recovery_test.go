package recovery

import (
	"errors"
	"strings"
	"testing"
)

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	if got := s.OnError(errors.New("boom"), Location{}); got != ActionFail {
		t.Fatalf("expected ActionFail, got %v", got)
	}
}

func TestPermissiveStrategyRecordsAndFixes(t *testing.T) {
	s := NewPermissiveStrategy()
	loc := Location{ByteOffset: 42, ObjectNum: 7, Component: "scanner"}
	if got := s.OnError(errors.New("unterminated literal"), loc); got != ActionFix {
		t.Fatalf("expected ActionFix, got %v", got)
	}
	if len(s.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %d", len(s.Errors))
	}
	msg := s.Errors[0].Error()
	for _, want := range []string{"scanner", "object 7", "offset 42", "unterminated literal"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("recorded error %q missing %q", msg, want)
		}
	}
}
