//go:build !debug_segsim

package memutils

// DebugValidation reports whether DebugValidate performs any checks in this build.
const DebugValidation bool = false

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_segsim build tag is present
func DebugValidate(validatable Validatable) {
}
