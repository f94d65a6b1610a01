// Package pricingpack implements the Pricing Pack Store: an
// append-only registry of immutable pricing snapshots with supersede
// chains.
package pricingpack

import (
	"regexp"
	"time"
)

// IDPattern is the pricing pack identifier format. The
// literal "PP_latest" is explicitly rejected — there are no symbolic
// aliases.
var IDPattern = regexp.MustCompile(`^PP_\d{4}-\d{2}-\d{2}(_D\d+)?$`)

// ValidID reports whether id matches the pricing pack identifier format and
// is not the rejected symbolic alias.
func ValidID(id string) bool {
	return id != "PP_latest" && IDPattern.MatchString(id)
}

// Pack is the immutable pricing snapshot entity. Once
// created, no field other than SupersededBy may change.
type Pack struct {
	ID                   string
	AsOfDate             time.Time
	Hash                 string
	Sources              []string
	SupersededBy         string
	IsFresh              bool
	CreatedAt            time.Time
	ReconciliationPassed bool
}

// Terminal reports whether this pack is the end of its supersede chain.
func (p Pack) Terminal() bool {
	return p.SupersededBy == ""
}

// AuditEntry records one supersede event in the append-only audit log.
type AuditEntry struct {
	OldPackID string
	NewPackID string
	Reason    string
	At        time.Time
}
