package world

import "errors"

var (
	// ErrReadOnly is returned when saving or editing a content pack group.
	ErrReadOnly = errors.New("group is read-only")
	// ErrNotFound is returned for unknown spawner or group ids.
	ErrNotFound = errors.New("not found")
	// ErrMissingParent is returned by upgrades that need a parent that does
	// not exist yet.
	ErrMissingParent = errors.New("parent not found")
)

// Feedback colors shown next to a command result.
const (
	ColorSuccess = "#4caf50"
	ColorWarning = "#ffb300"
	ColorError   = "#f44336"
)

// ActionResult is the outcome of a user command.
type ActionResult struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Color    string      `json:"color"`
	Spawners []SpawnerID `json:"spawners,omitempty"`
}

func succeed(msg string, ids ...SpawnerID) ActionResult {
	return ActionResult{Success: true, Message: msg, Color: ColorSuccess, Spawners: ids}
}

func fail(msg string) ActionResult {
	return ActionResult{Message: msg, Color: ColorError}
}

// decline is a failure the user can fix by aiming elsewhere.
func decline(msg string) ActionResult {
	return ActionResult{Message: msg, Color: ColorWarning}
}
