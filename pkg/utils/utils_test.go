package utils

import (
	"strings"
	"testing"
)

func TestGenerateSenderID_UniqueAndPrefixed(t *testing.T) {
	a := GenerateSenderID()
	b := GenerateSenderID()

	if !strings.HasPrefix(a, "peer-") {
		t.Errorf("expected peer- prefix, got %q", a)
	}
	if a == b {
		t.Errorf("expected unique ids, got %q twice", a)
	}
}

func TestGenerateSessionID_Prefixed(t *testing.T) {
	if id := GenerateSessionID(); !strings.HasPrefix(id, "session-") {
		t.Errorf("expected session- prefix, got %q", id)
	}
}
