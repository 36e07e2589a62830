package engine

import (
	"sync"
	"testing"

	"github.com/gatehouse/go-core/internal/policy"
	"github.com/gatehouse/go-core/pkg/types"
)

func TestContext_SucceedIsMonotonicAndIdempotent(t *testing.T) {
	p := policy.NewBuilder("p").RequireAuthenticatedUser().RequireRole("Admin").Build()
	ac := NewContext(types.NewPrincipal(), nil, p)

	reqs := p.Requirements()
	if len(ac.Pending()) != 2 {
		t.Fatalf("Expected 2 pending requirements, got %d", len(ac.Pending()))
	}

	ac.Succeed(reqs[0])
	ac.Succeed(reqs[0]) // repeat is harmless
	if len(ac.Pending()) != 1 {
		t.Errorf("Expected 1 pending requirement, got %d", len(ac.Pending()))
	}
	if ac.HasSucceeded() {
		t.Error("Context must not succeed while requirements are pending")
	}

	ac.Succeed(reqs[1])
	if !ac.HasSucceeded() {
		t.Error("Context should succeed once every requirement is met")
	}
}

func TestContext_FailIsTerminal(t *testing.T) {
	p := policy.NewBuilder("p").RequireAuthenticatedUser().Build()
	ac := NewContext(types.NewPrincipal(), nil, p)

	ac.Succeed(p.Requirements()[0])
	ac.Fail()

	if !ac.HasFailed() {
		t.Error("Expected HasFailed after Fail")
	}
	if ac.HasSucceeded() {
		t.Error("Fail must veto an otherwise successful context")
	}
}

type tagRequirement struct {
	Tags []string
}

func (tagRequirement) Kind() string { return "tags" }

func TestContext_ValueRequirementWithSliceFields(t *testing.T) {
	// Custom requirements may be value types with non-comparable fields;
	// tracking by position keeps them usable.
	p := policy.NewBuilder("p").
		AddRequirements(tagRequirement{Tags: []string{"a", "b"}}).
		Build()
	ac := NewContext(types.NewPrincipal(), nil, p)

	if len(ac.Pending()) != 1 {
		t.Fatalf("Expected 1 pending requirement, got %d", len(ac.Pending()))
	}

	ac.Succeed(p.Requirements()[0])
	if !ac.HasSucceeded() {
		t.Error("Expected value-typed requirement to be marked succeeded")
	}
}

func TestContext_ConcurrentSucceed(t *testing.T) {
	b := policy.NewBuilder("p")
	for i := 0; i < 64; i++ {
		b.RequireClaim("Permission", "v")
	}
	p := b.Build()
	ac := NewContext(types.NewPrincipal(), nil, p)

	var wg sync.WaitGroup
	for _, req := range p.Requirements() {
		wg.Add(1)
		go func(r types.Requirement) {
			defer wg.Done()
			ac.Succeed(r)
		}(req)
	}
	wg.Wait()

	if !ac.HasSucceeded() {
		t.Error("Expected all requirements succeeded after concurrent marking")
	}
}
