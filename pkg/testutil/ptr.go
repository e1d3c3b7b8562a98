// Package testutil holds helpers shared by tests.
package testutil

// Ptr returns a pointer to a copy of v, for optional option fields.
func Ptr[T any](v T) *T { return &v }
