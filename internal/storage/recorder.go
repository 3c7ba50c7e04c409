package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/profile"
)

// RecordPending stores a profile that is about to be sent.
func (s *Store) RecordPending(ctx context.Context, sessionID string, p *profile.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.SaveSubmission(ctx, Submission{
		ID:          p.ID,
		SessionID:   sessionID,
		CreatedAt:   p.CreatedAt,
		ProfileJSON: string(data),
	})
}

// RecordResult marks the submission of profileID completed with res.
func (s *Store) RecordResult(ctx context.Context, profileID string, res *matching.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return s.CompleteSubmission(ctx, profileID, string(data), res.Total, res.Eligible)
}

// RecordFailure marks the submission of profileID failed.
func (s *Store) RecordFailure(ctx context.Context, profileID string, cause error) error {
	return s.FailSubmission(ctx, profileID, cause.Error())
}

// Result decodes the stored matching result of a completed submission.
func (sub Submission) Result() (*matching.Result, error) {
	if sub.ResultJSON == "" {
		return nil, nil
	}
	var res matching.Result
	if err := json.Unmarshal([]byte(sub.ResultJSON), &res); err != nil {
		return nil, fmt.Errorf("decoding result of %s: %w", sub.ID, err)
	}
	res.ProfileID = sub.ID
	return &res, nil
}

// Profile decodes the stored profile.
func (sub Submission) Profile() (*profile.Profile, error) {
	var p profile.Profile
	if err := json.Unmarshal([]byte(sub.ProfileJSON), &p); err != nil {
		return nil, fmt.Errorf("decoding profile of %s: %w", sub.ID, err)
	}
	return &p, nil
}
