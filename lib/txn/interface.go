package txn

import (
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/google/uuid"
)

// StampStore is the part of a store transactions write their stamps through.
type StampStore interface {
	// StampNid returns the nid registered for the stamp uuid id
	StampNid(id uuid.UUID) (nid int32, err error)

	// WriteStamp writes a new stamp chronology with value s
	WriteStamp(nid int32, id uuid.UUID, s entity.Stamp) (err error)

	// RewriteStamp replaces the value of an existing stamp in place.
	// Rewriting to a canceled stamp also records the nid as canceled.
	RewriteStamp(nid int32, s entity.Stamp) (err error)
}

// ClaimChecker reports whether an open transaction owns a stamp
type ClaimChecker interface {
	Claims(stampNid int32) bool
}
