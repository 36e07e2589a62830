package engine

import (
	"context"

	"github.com/gatehouse/go-core/internal/cel"
	"github.com/gatehouse/go-core/pkg/types"
)

// Handler evaluates requirements it declares itself capable of. A handler
// that recognizes a requirement but finds it unmet simply leaves it
// pending; only an explicit Fail on the context vetoes the whole call.
type Handler interface {
	// CanHandle reports whether this handler can evaluate the requirement
	// for the resource of the current call.
	CanHandle(req types.Requirement, resource interface{}) bool

	// Handle evaluates one requirement. Errors propagate to the caller of
	// the authorization service and abort evaluation.
	Handle(ctx context.Context, ac *Context, req types.Requirement) error
}

// ClaimsHandler evaluates claims requirements by pooling the claims of
// every identity whose scheme passes the policy's allow-list.
type ClaimsHandler struct{}

// CanHandle implements Handler.
func (h *ClaimsHandler) CanHandle(req types.Requirement, _ interface{}) bool {
	return req.Kind() == types.KindClaims
}

// Handle implements Handler.
func (h *ClaimsHandler) Handle(_ context.Context, ac *Context, req types.Requirement) error {
	cr, ok := req.(*types.ClaimsRequirement)
	if !ok {
		// A foreign type reusing the claims kind; leave it for its own
		// handler.
		return nil
	}
	for _, claim := range ac.Principal().ClaimsForSchemes(ac.AuthenticationSchemes()) {
		if cr.Match(claim) {
			ac.Succeed(req)
			return nil
		}
	}
	return nil
}

// AuthenticatedUserHandler evaluates authenticated-user requirements.
type AuthenticatedUserHandler struct{}

// CanHandle implements Handler.
func (h *AuthenticatedUserHandler) CanHandle(req types.Requirement, _ interface{}) bool {
	return req.Kind() == types.KindAuthenticatedUser
}

// Handle implements Handler.
func (h *AuthenticatedUserHandler) Handle(_ context.Context, ac *Context, req types.Requirement) error {
	if ac.Principal().IsAuthenticated() {
		ac.Succeed(req)
	}
	return nil
}

// AssertionHandler evaluates CEL assertion requirements. Resources
// expose themselves to expressions either as a map or through a Mapper.
type AssertionHandler struct {
	cel *cel.Engine
}

// Mapper converts a resource into the map form CEL expressions see.
type Mapper interface {
	ToMap() map[string]interface{}
}

// NewAssertionHandler creates an assertion handler over a shared CEL
// engine.
func NewAssertionHandler(celEngine *cel.Engine) *AssertionHandler {
	return &AssertionHandler{cel: celEngine}
}

// CanHandle implements Handler.
func (h *AssertionHandler) CanHandle(req types.Requirement, _ interface{}) bool {
	return req.Kind() == types.KindAssertion
}

// Handle implements Handler.
func (h *AssertionHandler) Handle(_ context.Context, ac *Context, req types.Requirement) error {
	ar, isAssertion := req.(*types.AssertionRequirement)
	if !isAssertion {
		return nil
	}

	ok, err := h.cel.EvaluateExpression(ar.Expression, &cel.EvalContext{
		Principal: ac.Principal().ToMap(),
		Resource:  resourceMap(ac.Resource()),
	})
	if err != nil {
		return err
	}
	if ok {
		ac.Succeed(req)
	}
	return nil
}

func resourceMap(resource interface{}) map[string]interface{} {
	switch r := resource.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return r
	case Mapper:
		return r.ToMap()
	default:
		return map[string]interface{}{}
	}
}

// OperationHandler evaluates one named resource operation against one
// resource type. Matches gates on a runtime type check so the handler is
// only consulted when a resource of its type is present.
type OperationHandler struct {
	// Operation is the operation name this handler is bound to.
	Operation string

	// Matches reports whether the handler understands the resource type.
	Matches func(resource interface{}) bool

	// Evaluate decides whether the principal may perform the operation on
	// the resource.
	Evaluate func(ctx context.Context, principal *types.Principal, resource interface{}) (bool, error)
}

// CanHandle implements Handler.
func (h *OperationHandler) CanHandle(req types.Requirement, resource interface{}) bool {
	or, ok := req.(*types.OperationRequirement)
	if !ok || or.Name != h.Operation {
		return false
	}
	return resource != nil && h.Matches(resource)
}

// Handle implements Handler.
func (h *OperationHandler) Handle(ctx context.Context, ac *Context, req types.Requirement) error {
	ok, err := h.Evaluate(ctx, ac.Principal(), ac.Resource())
	if err != nil {
		return err
	}
	if ok {
		ac.Succeed(req)
	}
	return nil
}

// HandlerFunc adapts a function to the Handler interface for custom
// requirement kinds.
type HandlerFunc struct {
	Kinds []string
	Func  func(ctx context.Context, ac *Context, req types.Requirement) error
}

// CanHandle implements Handler.
func (h *HandlerFunc) CanHandle(req types.Requirement, _ interface{}) bool {
	for _, k := range h.Kinds {
		if req.Kind() == k {
			return true
		}
	}
	return false
}

// Handle implements Handler.
func (h *HandlerFunc) Handle(ctx context.Context, ac *Context, req types.Requirement) error {
	return h.Func(ctx, ac, req)
}
