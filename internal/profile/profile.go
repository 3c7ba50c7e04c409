// Package profile projects a completed answer set into the flat submission
// object sent to the matching service.
package profile

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	FieldID        = "profil_id"
	FieldCreatedAt = "created_at"

	// TimeFormat is RFC 3339 in UTC with millisecond precision.
	TimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Profile is the normalized submission object. Fields holds the mapped and
// derived values; ID and CreatedAt are flattened into the same JSON object.
// A built Profile is never mutated, so it can be resubmitted as is.
type Profile struct {
	ID        string
	CreatedAt time.Time
	Fields    map[string]any
}

// Get returns a mapped or derived field.
func (p *Profile) Get(field string) (any, bool) {
	v, ok := p.Fields[field]
	return v, ok
}

// Keys returns every key of the submission object in sorted order,
// computed fields included.
func (p *Profile) Keys() []string {
	keys := make([]string, 0, len(p.Fields)+2)
	for k := range p.Fields {
		keys = append(keys, k)
	}
	keys = append(keys, FieldID, FieldCreatedAt)
	sort.Strings(keys)
	return keys
}

func (p *Profile) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Fields)+2)
	for k, v := range p.Fields {
		flat[k] = v
	}
	flat[FieldID] = p.ID
	flat[FieldCreatedAt] = p.CreatedAt.UTC().Format(TimeFormat)
	return json.Marshal(flat)
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	id, _ := flat[FieldID].(string)
	var created time.Time
	if s, ok := flat[FieldCreatedAt].(string); ok && s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", FieldCreatedAt, err)
		}
		created = t
	}
	delete(flat, FieldID)
	delete(flat, FieldCreatedAt)

	p.ID = id
	p.CreatedAt = created
	p.Fields = flat
	return nil
}
