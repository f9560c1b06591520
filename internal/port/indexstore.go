package port

import "ctxasm/internal/domain"

// IndexStore persists the symbol index as a whole.
// Load returns domain.ErrIndexCorrupt (wrapped) when the stored form cannot be decoded,
// and an empty index when nothing has been stored yet.
type IndexStore interface {
	Load() (domain.Index, error)

	Save(idx domain.Index) error
}
