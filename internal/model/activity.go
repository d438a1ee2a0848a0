package model

import "time"

// EntityTypeProject is the only entity type that currently participates in
// notification delivery.
const EntityTypeProject = "project"

// Target references one entity an activity was recorded against.
type Target struct {
	Type string `json:"type"`
	ID   string `json:"_id"`
}

// Actions is the typed form of the loosely-shaped action map the upstream
// capture system records. The JSON keys are the upstream action kinds; shape
// is validated here (at the store boundary) rather than at read time.
type Actions struct {
	Added           bool `json:"added,omitempty"`
	Updated         bool `json:"updated,omitempty"`
	Awarded         bool `json:"awarded,omitempty"`
	StatusChanged   bool `json:"changedTheStatusTo,omitempty"`
	SetAsideAdded   bool `json:"addedASetAsideType,omitempty"`
	SetAsideChanged bool `json:"changedTheSetAsideType,omitempty"`
	DueDateAdded    bool `json:"addedADueDate,omitempty"`
	DueDateChanged  bool `json:"changedTheDueDate,omitempty"`

	// AddedFiles maps a package name to the files added under it.
	AddedFiles map[string][]string `json:"addedFiles,omitempty"`
}

// Activity is an immutable record of one or more actions applied to one
// target entity at a point in time. Only the Processed flag is ever mutated,
// exactly once, by the delivery orchestrator.
type Activity struct {
	ID         string    `json:"_id"`
	EntityType string    `json:"activityType"`
	Targets    []Target  `json:"targets"`
	Actions    Actions   `json:"actions"`
	CreatedAt  time.Time `json:"created_at"`
	Processed  bool      `json:"processed"`
}

// PrimaryTarget returns the id of the first target of the given type.
// Ok is false when the activity carries no such target.
func (a Activity) PrimaryTarget(entityType string) (id string, ok bool) {
	for _, t := range a.Targets {
		if t.Type == entityType {
			return t.ID, true
		}
	}
	return "", false
}
