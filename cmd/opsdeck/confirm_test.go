package main

import (
	"strings"
	"testing"
)

func TestRequireConfirmationForce(t *testing.T) {
	if err := requireConfirmation(confirmOptions{action: "delete vm 1", force: true}); err != nil {
		t.Fatalf("force should skip confirmation: %v", err)
	}
}

func TestRequireConfirmationJSONMode(t *testing.T) {
	err := requireConfirmation(confirmOptions{action: "delete vm 1", jsonOutput: true})
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected a --force hint, got %v", err)
	}
}

func TestPromptYesNo(t *testing.T) {
	ok, err := promptYesNo(strings.NewReader("yes\n"), nil, "")
	if err != nil || !ok {
		t.Fatalf("expected yes, got ok=%v err=%v", ok, err)
	}
	ok, err = promptYesNo(strings.NewReader("no\n"), nil, "")
	if err != nil || ok {
		t.Fatalf("expected no, got ok=%v err=%v", ok, err)
	}
	ok, err = promptYesNo(strings.NewReader("YES"), nil, "")
	if err != nil || !ok {
		t.Fatalf("expected case-insensitive yes, got ok=%v err=%v", ok, err)
	}
}
