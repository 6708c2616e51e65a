// Package model defines the template and session types shared by the
// evaluator, validator, autosave and versioning packages. Templates are plain
// value objects (sections of typed fields with showIf/requiredIf conditions
// and validation rules); FormData is the per-session answer set. Answer and
// condition values use the closed Value union so every operator and check is
// a total function over a known set of kinds.
package model
