// Package policy decides whether an actor may act on a generation. The
// functions are pure: they look only at the actor identity and the record.
package policy

import "github.com/caseforge/engine/internal/models"

// Action is an operation an actor can attempt against a generation.
type Action string

const (
	ActionView    Action = "view"
	ActionEdit    Action = "edit"
	ActionPublish Action = "publish"
	ActionDelete  Action = "delete"
)

// CanView allows the owner always, and anyone else only for published
// completed generations.
func CanView(actor string, g *models.Generation) bool {
	if g.IsOwner(actor) {
		return true
	}
	return g.Published && g.Status == models.StatusCompleted
}

// Allow evaluates (actor, generation, action). View follows CanView; edit,
// publish, and delete are owner-only with no exception for published
// content. All actions except view and delete additionally require the
// generation to be completed; delete is allowed in any status so abandoned
// pending or failed records stay removable.
func Allow(actor string, g *models.Generation, action Action) bool {
	switch action {
	case ActionView:
		return CanView(actor, g)
	case ActionDelete:
		return g.IsOwner(actor)
	case ActionEdit, ActionPublish:
		return g.IsOwner(actor) && g.Status == models.StatusCompleted
	}
	return false
}
