// Package ptr provides small pointer-of-value helpers for optional
// struct fields (project.yaml's show_progress, and similar *bool/*int
// config knobs), adapted from the teacher's pkg/utils.
package ptr

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// String returns a pointer to s.
func String(s string) *string { return &s }
