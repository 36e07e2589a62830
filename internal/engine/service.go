package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gatehouse/go-core/internal/cel"
	"github.com/gatehouse/go-core/internal/policy"
	"github.com/gatehouse/go-core/pkg/types"
)

// DecisionObserver receives the outcome of every authorization call.
// Implemented by the metrics collectors and the audit logger.
type DecisionObserver interface {
	ObserveDecision(policyName string, allowed bool, duration time.Duration)
}

// Service evaluates policies against principals. The handler list and
// policy registry are configured once at startup; evaluation itself is
// stateless per call.
type Service struct {
	registry  *policy.Registry
	handlers  []Handler
	observers []DecisionObserver
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHandlers appends handlers after the built-in set, in registration
// order.
func WithHandlers(handlers ...Handler) Option {
	return func(s *Service) {
		s.handlers = append(s.handlers, handlers...)
	}
}

// WithObservers registers decision observers.
func WithObservers(observers ...DecisionObserver) Option {
	return func(s *Service) {
		s.observers = append(s.observers, observers...)
	}
}

// DefaultHandlers returns the built-in handler set: claims,
// authenticated-user and CEL assertion evaluation.
func DefaultHandlers(celEngine *cel.Engine) []Handler {
	return []Handler{
		&ClaimsHandler{},
		&AuthenticatedUserHandler{},
		NewAssertionHandler(celEngine),
	}
}

// NewService creates an authorization service with the given built-in
// handlers followed by any handlers added through options.
func NewService(registry *policy.Registry, builtins []Handler, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		registry: registry,
		handlers: builtins,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize evaluates a policy against a principal and optional resource.
// A deny is a false result, never an error; errors are reserved for
// handler failures, which abort evaluation and propagate.
//
// Every handler runs against every requirement it can evaluate, in
// registration order, even after requirements succeed. An explicit Fail on
// the context aborts immediately. The call succeeds only when no pending
// requirement remains and no failure occurred; a requirement no handler
// claims stays pending and denies the call.
func (s *Service) Authorize(ctx context.Context, principal *types.Principal, resource interface{}, p *policy.Policy) (bool, error) {
	start := time.Now()

	if principal == nil {
		s.observe(p.Name(), false, time.Since(start))
		return false, nil
	}
	if len(p.Requirements()) == 0 {
		// A policy with no requirements never vacuously succeeds.
		s.logger.Warn("Policy has no requirements, denying", zap.String("policy", p.Name()))
		s.observe(p.Name(), false, time.Since(start))
		return false, nil
	}

	ac := NewContext(principal, resource, p)

	for _, h := range s.handlers {
		for _, req := range ac.Pending() {
			if !h.CanHandle(req, resource) {
				continue
			}
			if err := h.Handle(ctx, ac, req); err != nil {
				s.observe(p.Name(), false, time.Since(start))
				return false, err
			}
			if ac.HasFailed() {
				s.observe(p.Name(), false, time.Since(start))
				return false, nil
			}
		}
	}

	allowed := ac.HasSucceeded()
	if !allowed {
		s.logger.Debug("Authorization denied",
			zap.String("policy", p.Name()),
			zap.Int("pending_requirements", len(ac.Pending())),
		)
	}
	s.observe(p.Name(), allowed, time.Since(start))
	return allowed, nil
}

// AuthorizeName resolves a policy by name and evaluates it. An unknown
// name is an ordinary deny, not an error: only configuration-time
// resolution (registry Combine or MustGet) treats unknown names as fatal.
func (s *Service) AuthorizeName(ctx context.Context, principal *types.Principal, resource interface{}, name string) (bool, error) {
	p, ok := s.registry.Get(name)
	if !ok {
		s.logger.Debug("Unknown policy name, denying", zap.String("policy", name))
		s.observe(name, false, 0)
		return false, nil
	}
	return s.Authorize(ctx, principal, resource, p)
}

func (s *Service) observe(policyName string, allowed bool, duration time.Duration) {
	for _, o := range s.observers {
		o.ObserveDecision(policyName, allowed, duration)
	}
}
