// Package visibility decides whether one player may see another.
//
// Everything in here is pure and allocation free so that it can gate
// every join broadcast, tab completion and packet for every online pair.
package visibility

import "go.minekube.com/vanish/pkg/vanish/user"

// UnknownLevel is the level of an observer without tracked state.
// It is lower than any level a caller can assign.
const UnknownLevel = -1

// ShouldSee reports whether observer may see target.
//
// A visible target is seen by everyone and every player sees itself.
// Otherwise the observer needs the vanish permission and a level at
// least as high as the target's. A nil observer has UnknownLevel and
// a nil target is treated as not vanished.
func ShouldSee(observer, target *user.User, observerHasVanishPermission bool) bool {
	if target == nil || !target.Vanished {
		return true
	}
	if observer != nil && observer.ID == target.ID {
		return true
	}
	if !observerHasVanishPermission {
		return false
	}
	return CanSeeLevel(Level(observer), target.Level)
}

// Level returns the vanish level of u or UnknownLevel if u is nil.
func Level(u *user.User) int {
	if u == nil {
		return UnknownLevel
	}
	return u.Level
}

// CanSeeLevel compares two levels. Equal levels see each other.
func CanSeeLevel(observerLevel, targetLevel int) bool {
	return observerLevel >= targetLevel
}
