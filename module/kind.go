package module

import "fmt"

// Kind is the configuration base a module lives under.
type Kind string

const (
	KindGUI      Kind = "gui"
	KindLogic    Kind = "logic"
	KindHardware Kind = "hardware"
)

// Kinds lists the bases in the order configuration sections are processed.
var Kinds = []Kind{KindHardware, KindLogic, KindGUI}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindGUI, KindLogic, KindHardware:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k Kind) String() string { return string(k) }
