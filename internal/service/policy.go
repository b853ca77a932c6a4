package service

import "github.com/stuffr/marketplace/internal/model"

// requireModerator gates moderation actions on the actor's role.
func requireModerator(actor *model.User) error {
	if actor == nil || !model.CanModerate(actor.RoleID) {
		return ErrForbidden
	}
	return nil
}

// requireOwner allows only the announcement's author.
func requireOwner(actor *model.User, a *model.Announcement) error {
	if actor == nil || a.UserID != actor.ID {
		return ErrForbidden
	}
	return nil
}

// canView reports whether a non-public announcement is visible to viewer.
func canView(viewer *model.User, a *model.Announcement) bool {
	if a.Status == model.StatusPublished {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.ID == a.UserID || model.CanModerate(viewer.RoleID)
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// page clamps client supplied pagination.
func page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}
