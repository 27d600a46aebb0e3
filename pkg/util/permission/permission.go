// The permission utility package defines primitives that allow to
// check a Subject for a permission.
//
// Vanish never owns a permission system. The host environment hands in
// either a Subject (a player) or a Func and every check made through this
// package is fail-closed: a check that panics denies.
package permission

import "fmt"

// Func is the permission function to obtain the TriState for a permission.
type Func func(permission string) TriState

// Subject is a permission holder like a player.
type Subject interface {
	HasPermission(permission string) bool // Equal to PermissionValue(...).Bool()
	PermissionValue(permission string) TriState
}

// TriState can be in three states (True, False, Undefined), used for a setting.
type TriState uint8

const (
	Undefined TriState = iota // A permission is undefined.
	True                      // A permission is allowed.
	False                     // A permission is explicitly denied.
)

// Bool returns the bool value of a TriState where
// Undefined is converted to false.
func (t TriState) Bool() bool {
	return t == True
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "undefined"
	}
}

// Check asks fn for permission and converts any panic into a denial.
// The recovered panic, if any, is returned as err.
func Check(fn Func, permission string) (allowed bool, err error) {
	if fn == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			allowed = false
			err = fmt.Errorf("permission check for %q panicked: %v", permission, r)
		}
	}()
	return fn(permission).Bool(), nil
}

// Has is Check for a Subject.
func Has(s Subject, permission string) (allowed bool, err error) {
	if s == nil {
		return false, nil
	}
	return Check(s.PermissionValue, permission)
}
