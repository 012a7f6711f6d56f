package synth

import (
	"math/big"

	"github.com/google/uuid"
)

// newUID mints a fresh DICOM UID from a random UUID, using the standard
// UUID-derived-UID scheme (root 2.25.<uint128>, DICOM PS3.5 Annex B).
func newUID() string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	return "2.25." + n.String()
}
