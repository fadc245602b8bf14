package engine

import "errors"

var (
	// ErrAccountDead is returned when the server-authoritative account
	// status is DEAD. The session is terminally suspended; only a fresh
	// profile fetch can revive it.
	ErrAccountDead = errors.New("account status is DEAD")

	// ErrRolledBack is returned when an optimistic change was reverted
	// because the paired remote call failed.
	ErrRolledBack = errors.New("optimistic change rolled back")

	// ErrHabitNotFound is returned when a mutation targets an unknown habit.
	ErrHabitNotFound = errors.New("habit not found")
)
