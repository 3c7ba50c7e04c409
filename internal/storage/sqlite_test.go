package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/profile"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("applied %d migrations, want 2", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations out of order: %v", versions)
		}
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	err := s.SaveSubmission(ctx, Submission{
		ID:          "profil_1",
		SessionID:   "sess-1",
		CreatedAt:   created,
		ProfileJSON: `{"profil_id":"profil_1"}`,
	})
	if err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}

	got, err := s.GetSubmission(ctx, "profil_1")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got.Status != StatusPending || got.SessionID != "sess-1" {
		t.Errorf("got status=%q session=%q", got.Status, got.SessionID)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}

	if err := s.FailSubmission(ctx, "profil_1", "HTTP 503"); err != nil {
		t.Fatalf("FailSubmission: %v", err)
	}
	got, _ = s.GetSubmission(ctx, "profil_1")
	if got.Status != StatusFailed || got.Error != "HTTP 503" {
		t.Errorf("after fail: status=%q error=%q", got.Status, got.Error)
	}

	// Retrying the same profile resets it to pending and clears the error.
	if err := s.SaveSubmission(ctx, Submission{ID: "profil_1", SessionID: "sess-1", ProfileJSON: "{}"}); err != nil {
		t.Fatalf("SaveSubmission retry: %v", err)
	}
	got, _ = s.GetSubmission(ctx, "profil_1")
	if got.Status != StatusPending || got.Error != "" {
		t.Errorf("after retry: status=%q error=%q", got.Status, got.Error)
	}
	if got.ProfileJSON != `{"profil_id":"profil_1"}` {
		t.Errorf("retry must keep the original profile, got %s", got.ProfileJSON)
	}

	if err := s.CompleteSubmission(ctx, "profil_1", `{"resultats":[]}`, 4, 2); err != nil {
		t.Fatalf("CompleteSubmission: %v", err)
	}
	got, _ = s.GetSubmission(ctx, "profil_1")
	if got.Status != StatusCompleted || got.TotalAides != 4 || got.EligibleAides != 2 {
		t.Errorf("after complete: %+v", got)
	}
}

func TestSubmissionNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSubmission(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSubmission error = %v, want ErrNotFound", err)
	}
	if err := s.CompleteSubmission(ctx, "missing", "{}", 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteSubmission error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSubmission(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSubmission error = %v, want ErrNotFound", err)
	}
}

func TestListSubmissions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		err := s.SaveSubmission(ctx, Submission{
			ID:          fmt.Sprintf("profil_%d", i),
			SessionID:   "sess",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			ProfileJSON: "{}",
		})
		if err != nil {
			t.Fatalf("SaveSubmission %d: %v", i, err)
		}
	}

	page, err := s.ListSubmissions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(page) != 2 || page[0].ID != "profil_4" || page[1].ID != "profil_3" {
		t.Errorf("first page = %v", ids(page))
	}

	page, _ = s.ListSubmissions(ctx, 2, 4)
	if len(page) != 1 || page[0].ID != "profil_0" {
		t.Errorf("last page = %v", ids(page))
	}

	n, err := s.CountSubmissions(ctx)
	if err != nil || n != 5 {
		t.Errorf("CountSubmissions = %d, %v", n, err)
	}

	if err := s.DeleteSubmission(ctx, "profil_2"); err != nil {
		t.Fatalf("DeleteSubmission: %v", err)
	}
	n, _ = s.CountSubmissions(ctx)
	if n != 4 {
		t.Errorf("count after delete = %d", n)
	}
}

func ids(subs []Submission) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}

func TestRecorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &profile.Profile{
		ID:        "profil_rec",
		CreatedAt: time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC),
		Fields:    map[string]any{"region": "bretagne", "label_bio": true},
	}
	if err := s.RecordPending(ctx, "sess-9", p); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}

	res := &matching.Result{
		Total:    2,
		Eligible: 1,
		Entries: []matching.Entry{
			{ProgramID: "a1", Score: 90, Eligible: true, Program: matching.Program{Title: "Aid"}},
		},
	}
	if err := s.RecordResult(ctx, p.ID, res); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	sub, err := s.GetSubmission(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.SessionID != "sess-9" || sub.Status != StatusCompleted || sub.TotalAides != 2 {
		t.Errorf("stored submission = %+v", sub)
	}

	back, err := sub.Profile()
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if back.ID != p.ID || back.Fields["region"] != "bretagne" {
		t.Errorf("profile round trip = %+v", back)
	}

	stored, err := sub.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if stored.ProfileID != p.ID || len(stored.Entries) != 1 || stored.Entries[0].ProgramID != "a1" {
		t.Errorf("result round trip = %+v", stored)
	}

	if err := s.RecordFailure(ctx, p.ID, errors.New("boom")); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	sub, _ = s.GetSubmission(ctx, p.ID)
	if sub.Status != StatusFailed || sub.Error != "boom" {
		t.Errorf("after failure = %+v", sub)
	}
}
