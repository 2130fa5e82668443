package domain

import "strings"

// TenantID identifies an isolated customer organization. It is opaque to the
// core: the retrieval layer maps it to a shard name, nothing else interprets it.
type TenantID string

func (t TenantID) IsZero() bool {
	return strings.TrimSpace(string(t)) == ""
}

func (t TenantID) String() string {
	return string(t)
}
