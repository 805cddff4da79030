package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Constructor builds a new instance. It may block while connecting to
// external resources and should honour ctx.
type Constructor func(ctx context.Context) (any, error)

// FactoryKind distinguishes the two factory forms.
type FactoryKind int

const (
	FactoryNone FactoryKind = iota // Zero value, no constructor
	FactoryDirect                    // Directly invocable Constructor
	FactoryNamed                     // "module:Symbol" reference resolved through a Catalog
)

// String returns the string representation of the factory kind.
func (k FactoryKind) String() string {
	switch k {
	case FactoryDirect:
		return "direct"
	case FactoryNamed:
		return "named"
	default:
		return "none"
	}
}

// Factory is a tagged variant: either a direct Constructor or a named
// reference (module hint plus symbol) that must pass the Catalog's
// security gate before it can be invoked.
type Factory struct {
	kind   FactoryKind
	direct Constructor
	module string
	symbol string
}

// Direct wraps a constructor function.
func Direct(fn Constructor) Factory {
	if fn == nil {
		return Factory{}
	}
	return Factory{kind: FactoryDirect, direct: fn}
}

// Named builds a late-bound factory reference.
func Named(module, symbol string) Factory {
	return Factory{kind: FactoryNamed, module: module, symbol: symbol}
}

// ParseFactoryRef parses the textual "module.path:Symbol" form.
func ParseFactoryRef(ref string) (Factory, error) {
	module, symbol, ok := strings.Cut(strings.TrimSpace(ref), ":")
	module = strings.TrimSpace(module)
	symbol = strings.TrimSpace(symbol)
	if !ok || module == "" || symbol == "" || strings.Contains(symbol, ":") {
		return Factory{}, fmt.Errorf("%w: %q (want module:Symbol)", ErrInvalidFactoryRef, ref)
	}
	return Named(module, symbol), nil
}

// Kind reports which variant this factory holds.
func (f Factory) Kind() FactoryKind { return f.kind }

// Module returns the module hint of a named factory.
func (f Factory) Module() string { return f.module }

// Symbol returns the symbol of a named factory.
func (f Factory) Symbol() string { return f.symbol }

// Ref returns the "module:Symbol" form of a named factory, or a
// descriptive placeholder for other kinds.
func (f Factory) Ref() string {
	switch f.kind {
	case FactoryNamed:
		return f.module + ":" + f.symbol
	case FactoryDirect:
		return "<direct>"
	default:
		return "<none>"
	}
}

// String implements fmt.Stringer.
func (f Factory) String() string { return f.Ref() }

// MarshalJSON renders the factory as its reference string so candidates
// can be included in diagnostics output.
func (f Factory) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Ref())
}
