package wsgi

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/indigo-web/fastwsgi/internal/httpchars"
)

var (
	ErrMalformedLocator  = errors.New("locator must be in the format <module>:<attribute>")
	ErrModuleNotFound    = errors.New("module not found")
	ErrAttributeNotFound = errors.New("attribute not found")
)

var registry = struct {
	mu      sync.RWMutex
	modules map[string]map[string]Application
}{
	modules: make(map[string]map[string]Application),
}

// ParseLocator splits a locator like "examples/apps:hello.app" into the module path and
// the attribute path. The module elements are separated by dots or slashes, the attribute
// ones by dots only.
func ParseLocator(locator string) (module, attribute string, err error) {
	module, attribute, found := strings.Cut(locator, ":")
	if !found || !isPath(strings.ReplaceAll(module, "/", ".")) || !isPath(attribute) {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedLocator, locator)
	}

	return module, attribute, nil
}

func isPath(path string) bool {
	for _, element := range strings.Split(path, ".") {
		if !httpchars.IsToken(element) {
			return false
		}
	}

	return true
}

// Register makes the application resolvable by the locator. It's meant to be called from
// init functions, so a malformed or duplicate locator panics.
func Register(locator string, app Application) {
	if app == nil {
		panic("wsgi: Register application is nil")
	}

	module, attribute, err := ParseLocator(locator)
	if err != nil {
		panic(fmt.Sprintf("wsgi: Register: %s", err))
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	attributes, found := registry.modules[module]
	if !found {
		attributes = make(map[string]Application)
		registry.modules[module] = attributes
	}

	if _, dup := attributes[attribute]; dup {
		panic(fmt.Sprintf("wsgi: Register called twice for %s", locator))
	}

	attributes[attribute] = app
}

// Resolve returns the application registered by the locator.
func Resolve(locator string) (Application, error) {
	module, attribute, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	attributes, found := registry.modules[module]
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, module)
	}

	app, found := attributes[attribute]
	if !found {
		return nil, fmt.Errorf("%w: %q in module %q", ErrAttributeNotFound, attribute, module)
	}

	return app, nil
}

// Locators returns all the registered locators, sorted.
func Locators() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var locators []string
	for module, attributes := range registry.modules {
		for attribute := range attributes {
			locators = append(locators, module+":"+attribute)
		}
	}

	slices.Sort(locators)
	return locators
}
