package model

import "time"

// Workflow lifecycle stages that drive message composition. Any other value
// suppresses composition entirely.
const (
	StatusPresolicitation = "Presolicitation"
	StatusOpen            = "Open"
	StatusAwarded         = "Awarded"
	StatusCancelled       = "Cancelled"
)

// Counterparty is a party on the other side of a tracked entity (for a
// project, the vendor it was awarded to). The first counterparty in a
// snapshot is authoritative for award messaging.
type Counterparty struct {
	Name string `json:"name"`
}

// Snapshot is the current state of a target entity at composition time.
type Snapshot struct {
	ID             string         `json:"_id"`
	Name           string         `json:"name"`
	WorkflowStatus string         `json:"workflowStatus"`
	DueDate        *time.Time     `json:"dueDate,omitempty"`
	SetAsideType   string         `json:"setAsideType,omitempty"`
	AwardValue     string         `json:"awardValue,omitempty"`
	Counterparties []Counterparty `json:"counterparties,omitempty"`
	Version        int            `json:"version"`
	Slug           string         `json:"slug,omitempty"`
}

// CounterpartyName returns the authoritative counterparty name, if any.
func (s *Snapshot) CounterpartyName() string {
	if s == nil || len(s.Counterparties) == 0 {
		return ""
	}
	return s.Counterparties[0].Name
}
