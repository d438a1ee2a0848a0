package compose

import "github.com/GovTribe/notify/internal/model"

// Perspective is the viewpoint a message is phrased from. It is determined
// structurally from the type of the viewing object, never from its identity.
type Perspective int

const (
	PerspectiveNone Perspective = iota
	PerspectiveEntity
	PerspectiveTracker
	PerspectiveCounterparty
)

func (p Perspective) String() string {
	switch p {
	case PerspectiveEntity:
		return "entity"
	case PerspectiveTracker:
		return "trackingParty"
	case PerspectiveCounterparty:
		return "counterparty"
	default:
		return "none"
	}
}

// PerspectiveOf maps a viewing object to its perspective.
func PerspectiveOf(viewer any) Perspective {
	switch viewer.(type) {
	case *model.Snapshot, model.Snapshot:
		return PerspectiveEntity
	case *model.Recipient, model.Recipient:
		return PerspectiveTracker
	case *model.Counterparty, model.Counterparty:
		return PerspectiveCounterparty
	default:
		return PerspectiveNone
	}
}
