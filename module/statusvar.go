package module

import "fmt"

// StatusVar is instance state persisted across activation cycles. The
// Constructor turns a persisted raw value into the live value; the
// Representer does the reverse before saving.
type StatusVar struct {
	Name        string
	Default     any
	NewDefault  func() any
	Constructor Constructor
	Representer Constructor
}

func (s StatusVar) defaultValue() any {
	if s.NewDefault != nil {
		return s.NewDefault()
	}
	return s.Default
}

func (s StatusVar) load(raw map[string]any) (any, error) {
	v, ok := raw[s.Name]
	if !ok {
		return s.defaultValue(), nil
	}
	if s.Constructor == nil {
		return v, nil
	}
	cv, err := s.Constructor(v)
	if err != nil {
		return nil, fmt.Errorf("status variable %s: %w", s.Name, err)
	}
	return cv, nil
}

func (s StatusVar) dump(v any) (any, error) {
	if s.Representer == nil {
		return v, nil
	}
	rv, err := s.Representer(v)
	if err != nil {
		return nil, fmt.Errorf("status variable %s: %w", s.Name, err)
	}
	return rv, nil
}
