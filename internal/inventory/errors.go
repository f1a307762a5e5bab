package inventory

import "errors"

// Business-rule errors surfaced to collaborators.
var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrGroupInUse           = errors.New("group has products")
	ErrDefaultGroup         = errors.New("default group cannot be deleted")
	ErrDeleteNotApplied     = errors.New("delete not applied: row still present")
)
