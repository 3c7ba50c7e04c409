// Package export writes the submission history out as JSON Lines, to any
// writer or to an S3 bucket.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kalambet/intake/internal/storage"
)

const pageSize = 100

// Source pages through stored submissions. Implemented by storage.Store.
type Source interface {
	ListSubmissions(ctx context.Context, limit, offset int) ([]storage.Submission, error)
}

// Record is one exported line.
type Record struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Status         string          `json:"status"`
	Profile        json.RawMessage `json:"profile"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	TotalAides     int             `json:"total_aides"`
	AidesEligibles int             `json:"aides_eligibles"`
}

func recordOf(sub storage.Submission) Record {
	r := Record{
		ID:             sub.ID,
		SessionID:      sub.SessionID,
		CreatedAt:      sub.CreatedAt,
		Status:         sub.Status,
		Profile:        rawOrNull(sub.ProfileJSON),
		Error:          sub.Error,
		TotalAides:     sub.TotalAides,
		AidesEligibles: sub.EligibleAides,
	}
	if sub.ResultJSON != "" {
		r.Result = json.RawMessage(sub.ResultJSON)
	}
	return r
}

func rawOrNull(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

// WriteJSONL writes every submission, newest first, one JSON object per line.
// It returns the number of records written.
func WriteJSONL(ctx context.Context, src Source, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	n := 0
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		page, err := src.ListSubmissions(ctx, pageSize, offset)
		if err != nil {
			return n, fmt.Errorf("listing submissions: %w", err)
		}
		for _, sub := range page {
			if err := enc.Encode(recordOf(sub)); err != nil {
				return n, fmt.Errorf("encoding %s: %w", sub.ID, err)
			}
			n++
		}
		if len(page) < pageSize {
			break
		}
	}
	if err := bw.Flush(); err != nil {
		return n, err
	}
	return n, nil
}
