package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// defaultDenylist names Go packages whose symbols must never be reachable
// through a named factory: process control, filesystem access, dynamic
// loading and runtime internals.
var defaultDenylist = []string{
	"os",
	"os/exec",
	"os/signal",
	"syscall",
	"golang.org/x/sys",
	"io/fs",
	"io/ioutil",
	"path/filepath",
	"plugin",
	"reflect",
	"unsafe",
	"runtime",
	"runtime/debug",
}

// DefaultDenylist returns a copy of the built-in module denylist.
func DefaultDenylist() []string {
	return slices.Clone(defaultDenylist)
}

// Catalog resolves named factories. A named factory is only invocable when
// its module passes the gate (not denylisted, allowlisted by prefix) and a
// constructor was explicitly provided for "module:Symbol". Named
// references may originate from untrusted manifests, so nothing is ever
// looked up dynamically.
type Catalog struct {
	mu           sync.RWMutex
	allow        []string
	deny         []string
	constructors map[string]Constructor
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithAllowedModules sets the module prefixes named factories may come from.
func WithAllowedModules(prefixes ...string) CatalogOption {
	return func(c *Catalog) {
		c.allow = normalizeModules(prefixes)
	}
}

// WithDeniedModules extends the built-in denylist.
func WithDeniedModules(modules ...string) CatalogOption {
	return func(c *Catalog) {
		c.deny = append(c.deny, normalizeModules(modules)...)
	}
}

// NewCatalog creates an empty catalog. Without an allowlist every named
// factory is rejected.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		deny:         normalizeModules(defaultDenylist),
		constructors: make(map[string]Constructor),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAllowlist replaces the module allowlist.
func (c *Catalog) SetAllowlist(prefixes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allow = normalizeModules(prefixes)
}

// Provide registers the constructor behind a "module:Symbol" reference.
func (c *Catalog) Provide(module, symbol string, fn Constructor) error {
	if fn == nil {
		return fmt.Errorf("catalog: %s:%s: %w", module, symbol, ErrConstructorNil)
	}
	f, err := ParseFactoryRef(module + ":" + symbol)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ref := f.Ref()
	if _, exists := c.constructors[ref]; exists {
		return fmt.Errorf("catalog: %s: %w", ref, ErrConstructorExists)
	}
	c.constructors[ref] = fn
	return nil
}

// Check runs the module gate without looking up a constructor.
func (c *Catalog) Check(module string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkLocked(normalizeModule(module))
}

func (c *Catalog) checkLocked(module string) error {
	for _, denied := range c.deny {
		if hasModulePrefix(module, denied) {
			return fmt.Errorf("%w: %q", ErrFactoryDenied, module)
		}
	}
	for _, allowed := range c.allow {
		if hasModulePrefix(module, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrFactoryNotAllowed, module)
}

// Constructor returns the invocable constructor for f. Direct factories
// pass through; named factories go through the gate and the catalog.
func (c *Catalog) Constructor(f Factory) (Constructor, error) {
	switch f.Kind() {
	case FactoryDirect:
		return f.direct, nil
	case FactoryNamed:
	default:
		return nil, ErrFactoryEmpty
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkLocked(normalizeModule(f.Module())); err != nil {
		return nil, err
	}
	fn, ok := c.constructors[f.Ref()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactoryUnknown, f.Ref())
	}
	return fn, nil
}

// normalizeModule maps both dotted ("acme.adapters.cache") and slashed
// ("github.com/acme/cache") module hints to one dotted form so prefix
// checks work on segment boundaries.
func normalizeModule(module string) string {
	module = strings.TrimSpace(module)
	module = strings.ReplaceAll(module, "/", ".")
	return strings.Trim(module, ".")
}

func normalizeModules(modules []string) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		if n := normalizeModule(m); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func hasModulePrefix(module, prefix string) bool {
	return module == prefix || strings.HasPrefix(module, prefix+".")
}
