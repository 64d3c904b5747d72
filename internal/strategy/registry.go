package strategy

import (
	"context"
	"fmt"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy/strategies"
)

// Registry resolves strategy names from user profiles to predicate
// implementations. Strategies are stateless, so one instance of each is
// shared by all users.
type Registry struct {
	byName map[string]ports.Strategy
	logger ports.Logger
}

// NewRegistry creates a registry with all built-in strategies registered.
func NewRegistry(logger ports.Logger) (*Registry, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy registry")
	}

	r := &Registry{
		byName: make(map[string]ports.Strategy),
		logger: logger,
	}
	for _, s := range []ports.Strategy{
		strategies.NewMomentumBreakout(logger),
		strategies.NewBreakoutSqueeze(logger),
		strategies.NewSniperPro(logger),
		strategies.NewSupportRebound(logger),
		strategies.NewWhaleRadar(logger),
	} {
		r.byName[s.Name()] = s
	}
	return r, nil
}

// Get returns the strategy registered under name, or ErrNotFound.
func (r *Registry) Get(name string) (ports.Strategy, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", name, ports.ErrNotFound)
	}
	return s, nil
}

// Names returns the registered strategy names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Resolve maps a user's strategy settings to runnable strategies. Unknown
// names and invalid parameters skip that strategy with a warning rather than
// failing the whole user.
func (r *Registry) Resolve(ctx context.Context, settings []domain.StrategySetting) []ResolvedStrategy {
	resolved := make([]ResolvedStrategy, 0, len(settings))
	for _, s := range settings {
		impl, ok := r.byName[s.Name]
		if !ok {
			r.logger.Warn(ctx, "Skipping unknown strategy in user profile", map[string]interface{}{"strategy": s.Name})
			continue
		}
		if err := validateParams(impl, s.Params); err != nil {
			r.logger.Warn(ctx, "Skipping strategy with invalid parameters", map[string]interface{}{
				"strategy": s.Name, "error": err.Error(),
			})
			continue
		}
		resolved = append(resolved, ResolvedStrategy{Strategy: impl, Params: s.Params})
	}
	return resolved
}

// validateParams checks user-supplied parameters against the strategy's
// declared keys and ranges.
func validateParams(s ports.Strategy, params map[string]float64) error {
	schema := s.Params()
	for key, value := range params {
		bounds, ok := schema[key]
		if !ok {
			return fmt.Errorf("unknown parameter %q: %w", key, ports.ErrInvalidRequest)
		}
		if value < bounds.Min || value > bounds.Max {
			return fmt.Errorf("parameter %q = %v outside [%v, %v]: %w",
				key, value, bounds.Min, bounds.Max, ports.ErrInvalidRequest)
		}
	}
	return nil
}

// ResolvedStrategy pairs a strategy implementation with one user's parameters.
type ResolvedStrategy struct {
	Strategy ports.Strategy
	Params   map[string]float64
}
