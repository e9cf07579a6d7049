package model

import "testing"

func TestAccessLevelOrdering(t *testing.T) {
	levels := []AccessLevel{AccessViewer, AccessOperator, AccessManager, AccessAdmin}
	for i, have := range levels {
		if have.Rank() != i {
			t.Fatalf("%s rank=%d, want %d", have, have.Rank(), i)
		}
		for j, want := range levels {
			if got := have.Satisfies(want); got != (i >= j) {
				t.Fatalf("%s.Satisfies(%s)=%v", have, want, got)
			}
		}
	}
	var unset AccessLevel
	if unset.Satisfies(AccessViewer) || AccessAdmin.Satisfies(unset) {
		t.Fatal("zero level must never satisfy or be satisfied")
	}
}

func TestParseAccessLevel(t *testing.T) {
	lvl, err := ParseAccessLevel("manager")
	if err != nil || lvl != AccessManager {
		t.Fatalf("ParseAccessLevel(manager)=%v,%v", lvl, err)
	}
	if _, err := ParseAccessLevel("owner"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestCaseStatusTerminal(t *testing.T) {
	if !CaseDone.Terminal() || !CaseCancelled.Terminal() || CaseOpen.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
	if CaseStatus("archived").Valid() {
		t.Fatal("archived must not be a valid status")
	}
}

func TestDocumentAndExtractionStatuses(t *testing.T) {
	if !DocumentArchived.Valid() || DocumentStatus("deleted").Valid() {
		t.Fatal("unexpected document status classification")
	}
	if !ExtractionPartial.Valid() || ExtractionStatus("pending").Valid() {
		t.Fatal("unexpected extraction status classification")
	}
}
