package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Permit is the immutable work item submitted for analysis. It is constructed
// once per request and only read afterwards; units receive copies.
type Permit struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Category         string   `json:"category,omitempty"`
	Location         string   `json:"location,omitempty"`
	DeclaredMeasures []string `json:"declared_measures,omitempty"`
	DeclaredActions  []string `json:"declared_actions,omitempty"`
}

// Fingerprint is the cache identity of a permit: the same permit content
// always hashes to the same value, independent of slice ordering of the
// declared mitigations.
func (p Permit) Fingerprint() string {
	normalized := p
	normalized.DeclaredMeasures = sortedCopy(p.DeclaredMeasures)
	normalized.DeclaredActions = sortedCopy(p.DeclaredActions)

	raw, err := json.Marshal(normalized)
	if err != nil {
		raw = []byte(p.ID + "|" + p.Title)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (p Permit) QueryText() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.Title, p.Category, p.Location, p.Description} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, " ")
}

func sortedCopy(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
