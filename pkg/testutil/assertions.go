// Package testutil provides shared test assertions and tree generators
// for the espalier packages.
package testutil

import (
	"testing"
	"time"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// AssertChildren verifies an exact ordered child list.
func AssertChildren(t *testing.T, got []model.NodeID, want ...model.NodeID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected children %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected children %v, got %v", want, got)
		}
	}
}

// AssertPath verifies a resolved path.
func AssertPath(t *testing.T, got model.TreePath, want ...model.NodeID) {
	t.Helper()
	if !got.Equal(model.NewTreePath(want...)) {
		t.Fatalf("expected path %v, got %v", model.NewTreePath(want...), got)
	}
}

// AssertRecordKinds verifies the kind sequence of a record batch.
func AssertRecordKinds(t *testing.T, records []model.ChangeRecord, want ...model.ChangeKind) {
	t.Helper()
	if len(records) != len(want) {
		t.Fatalf("expected %d records (%v), got %d: %v", len(want), want, len(records), records)
	}
	for i := range want {
		if records[i].Kind != want[i] {
			t.Fatalf("record %d: expected %v, got %v", i, want[i], records[i])
		}
	}
}

// Eventually polls cond until it returns true or the timeout elapses.
// The engine settles asynchronously; tests use this instead of sleeps.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
