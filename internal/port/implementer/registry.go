package implementer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Strob0t/LoopForge/internal/domain"
)

// Factory is a constructor function that creates a new Implementer instance.
type Factory func(config map[string]string) (Implementer, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
	order     []string
)

// preferred is the selection order for BestAvailable. Real CLIs win over the
// built-in simulator.
var preferred = []string{"codex_cli", "claude_cli", "aider_cli", "simulate"}

// Register makes an implementer factory available by name.
// It is typically called from the adapter package's Register helper.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("implementer: duplicate registration for %q", name))
	}
	factories[name] = factory
	order = append(order, name)
}

// New creates a new Implementer by name using the registered factory. An
// unregistered name is a caller error and fails with domain.ErrValidation.
func New(name string, config map[string]string) (Implementer, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("implementer: unknown implementer %q (available: %s): %w",
			name, strings.Join(Available(), ", "), domain.ErrValidation)
	}
	return factory(config)
}

// Available returns the names of all registered implementers in
// registration order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, len(order))
	copy(names, order)
	return names
}

// BestAvailable returns the most capable implementer that can run on this
// host, preferring real CLI backends over the simulator.
func BestAvailable() (Implementer, error) {
	for _, name := range preferred {
		mu.RLock()
		factory, ok := factories[name]
		mu.RUnlock()
		if !ok {
			continue
		}
		impl, err := factory(nil)
		if err != nil {
			continue
		}
		if impl.Available() {
			return impl, nil
		}
	}
	return nil, fmt.Errorf("no implementer available: %w", domain.ErrUnavailable)
}
