package validation

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Built-in custom validator names registered by NewRegistry.
const (
	ValidatorNationalID            = "nationalId"
	ValidatorPhone                 = "phone"
	ValidatorLicenseNumber         = "licenseNumber"
	ValidatorHealthInsuranceNumber = "healthInsuranceNumber"
	ValidatorPensionNumber         = "pensionNumber"
)

// CustomValidator checks a non-empty value and returns an error whose message
// is surfaced to the user, or nil when the value is acceptable.
type CustomValidator func(value model.Value) error

// Registry maps custom validator names to implementations. Each Validator
// owns its own registry so tenants can carry different rule sets in one
// process.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]CustomValidator
}

// NewRegistry constructs a registry with the built-in validators registered.
func NewRegistry() *Registry {
	reg := NewEmptyRegistry()
	reg.registerBuiltins()
	return reg
}

// NewEmptyRegistry constructs a registry without built-ins.
func NewEmptyRegistry() *Registry {
	return &Registry{validators: make(map[string]CustomValidator)}
}

// Register adds or replaces the validator for name.
func (r *Registry) Register(name string, fn CustomValidator) error {
	if r == nil {
		return errors.New("validation: registry is nil")
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("validation: custom validator name is required")
	}
	if fn == nil {
		return errors.New("validation: custom validator func is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[trimmed] = fn
	return nil
}

// MustRegister panics on registration failure. Useful for init-time wiring.
func (r *Registry) MustRegister(name string, fn CustomValidator) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (CustomValidator, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.validators[strings.TrimSpace(name)]
	return fn, ok
}

// Names returns the registered validator names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.validators))
	for name := range r.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegexValidator builds a CustomValidator that accepts string values matching
// pattern. Non-string values fail with message.
func RegexValidator(pattern, message string) CustomValidator {
	re := regexp.MustCompile(pattern)
	return func(value model.Value) error {
		s, ok := value.AsString()
		if !ok || !re.MatchString(strings.TrimSpace(s)) {
			return errors.New(message)
		}
		return nil
	}
}

func (r *Registry) registerBuiltins() {
	r.MustRegister(ValidatorNationalID, RegexValidator(`^\d{6}-?[1-8]\d{6}$`, "Enter a valid national ID number"))
	r.MustRegister(ValidatorPhone, RegexValidator(`^01[016789]-?\d{3,4}-?\d{4}$`, "Enter a valid mobile phone number"))
	r.MustRegister(ValidatorLicenseNumber, RegexValidator(`^\d{2}-?\d{2}-?\d{6}-?\d{2}$`, "Enter a valid license number"))
	r.MustRegister(ValidatorHealthInsuranceNumber, RegexValidator(`^\d{11}$`, "Enter a valid health insurance number"))
	r.MustRegister(ValidatorPensionNumber, RegexValidator(`^\d{3}-?\d{2}-?\d{5}$`, "Enter a valid pension contribution number"))
}
