package matching

import (
	"encoding/json"
	"slices"
	"strconv"
)

// QuasiEligibleScore is the score from which a non-eligible program is
// reported as nearly eligible.
const QuasiEligibleScore = 40

// Result is the matching service's answer for one profile.
type Result struct {
	Total         int     `json:"total_aides"`
	Eligible      int     `json:"aides_eligibles"`
	QuasiEligible int     `json:"aides_quasi_eligibles"`
	NotEligible   int     `json:"aides_non_eligibles,omitempty"`
	EstimatedMin  float64 `json:"montant_total_estime_min"`
	EstimatedMax  float64 `json:"montant_total_estime_max"`
	Entries       []Entry `json:"resultats"`

	// ProfileID is the profile the result was computed for. Not on the wire.
	ProfileID string `json:"-"`
}

// Entry scores one program against the profile.
type Entry struct {
	ProgramID       ProgramID `json:"aide_id"`
	ProfileID       string    `json:"profil_id,omitempty"`
	Score           float64   `json:"score"`
	Eligible        bool      `json:"eligible"`
	MissingCriteria []string  `json:"criteres_manquants,omitempty"`
	EstimatedMin    *float64  `json:"montant_estime_min,omitempty"`
	EstimatedMax    *float64  `json:"montant_estime_max,omitempty"`
	Summary         string    `json:"resume,omitempty"`
	Recommendations []string  `json:"recommandations,omitempty"`
	Program         Program   `json:"aide"`
}

// QuasiEligible reports a non-eligible entry that scores close enough to be
// worth showing separately.
func (e Entry) QuasiEligible() bool {
	return !e.Eligible && e.Score >= QuasiEligibleScore
}

// Program is the funding program data nested in an entry.
type Program struct {
	Title        string   `json:"titre"`
	Organization string   `json:"organisme"`
	Description  string   `json:"description,omitempty"`
	Types        []string `json:"type_aide,omitempty"`
	URL          string   `json:"url,omitempty"`
	AmountMin    *float64 `json:"montant_min,omitempty"`
	AmountMax    *float64 `json:"montant_max,omitempty"`
}

// ProgramID accepts both string and numeric identifiers.
type ProgramID string

func (id *ProgramID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ProgramID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ProgramID(n.String())
	return nil
}

// Ranked returns the entries ordered by descending score. Ties keep the
// service's order.
func (r *Result) Ranked() []Entry {
	out := slices.Clone(r.Entries)
	slices.SortStableFunc(out, func(a, b Entry) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out
}

// Split partitions the ranked entries into eligible, quasi-eligible and the rest.
func (r *Result) Split() (eligible, quasi, other []Entry) {
	for _, e := range r.Ranked() {
		switch {
		case e.Eligible:
			eligible = append(eligible, e)
		case e.QuasiEligible():
			quasi = append(quasi, e)
		default:
			other = append(other, e)
		}
	}
	return eligible, quasi, other
}

// FormatAmount renders a euro amount without decimals.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64) + " €"
}
