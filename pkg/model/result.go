package model

// ValidationResult is the outcome of validating a whole form. Errors block
// submission; warnings never affect Valid.
type ValidationResult struct {
	Valid    bool                `json:"isValid"`
	Errors   map[string][]string `json:"errors"`
	Warnings map[string][]string `json:"warnings"`
}

// NewValidationResult returns an empty, valid result with initialised maps.
func NewValidationResult() ValidationResult {
	return ValidationResult{
		Valid:    true,
		Errors:   make(map[string][]string),
		Warnings: make(map[string][]string),
	}
}

// FieldErrors returns the errors recorded for id.
func (r ValidationResult) FieldErrors(id string) []string {
	return r.Errors[id]
}
