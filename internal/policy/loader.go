package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gatehouse/go-core/internal/cel"
	"github.com/gatehouse/go-core/pkg/types"
)

// Document is the on-disk form of a policy. Requirements are a list of
// single-key entries so files stay readable:
//
//	name: can-edit-document
//	authenticationSchemes: [cookie]
//	requirements:
//	  - claim: Permission
//	    values: [CanEditDocument]
//	  - roles: [Admin, Editors]
//	  - authenticatedUser: true
//	  - operation: "document:edit"
//	  - assertion: 'resource.ownerId == principal.id'
type Document struct {
	Name                  string                `yaml:"name"`
	AuthenticationSchemes []string              `yaml:"authenticationSchemes"`
	Requirements          []RequirementDocument `yaml:"requirements"`
}

// RequirementDocument is one requirement entry in a policy document.
// Exactly one of Claim, Roles, AuthenticatedUser, Operation or Assertion
// must be set.
type RequirementDocument struct {
	Claim             string   `yaml:"claim"`
	Values            []string `yaml:"values"`
	Roles             []string `yaml:"roles"`
	AuthenticatedUser bool     `yaml:"authenticatedUser"`
	Operation         string   `yaml:"operation"`
	Assertion         string   `yaml:"assertion"`
}

// Loader parses policy files into built policies, pre-compiling assertion
// expressions so malformed CEL is rejected at load time rather than on the
// request path.
type Loader struct {
	logger *zap.Logger
	cel    *cel.Engine
}

// NewLoader creates a policy loader. The CEL engine may be shared with the
// evaluation service so compiled assertion programs are reused.
func NewLoader(celEngine *cel.Engine, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger, cel: celEngine}
}

// LoadFromDirectory loads every policy file in a directory. Files that
// fail to parse are logged and skipped so one bad file does not take down
// the rest of the set.
func (l *Loader) LoadFromDirectory(path string) ([]*Policy, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var policies []*Policy
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := filepath.Join(path, entry.Name())
		p, err := l.LoadFromFile(filePath)
		if err != nil {
			l.logger.Warn("Failed to load policy file",
				zap.String("file", filePath),
				zap.Error(err),
			)
			continue
		}
		policies = append(policies, p)
	}

	return policies, nil
}

// LoadFromFile loads and builds a single policy file.
func (l *Loader) LoadFromFile(filePath string) (*Policy, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	doc := &Document{}
	if err := yaml.Unmarshal(content, doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	return l.Build(doc)
}

// Build turns a parsed document into an immutable policy.
func (l *Loader) Build(doc *Document) (*Policy, error) {
	if doc.Name == "" {
		return nil, ErrEmptyPolicyName
	}

	b := NewBuilder(doc.Name)
	b.RequireAuthenticationSchemes(doc.AuthenticationSchemes...)

	for i, req := range doc.Requirements {
		switch {
		case req.Claim != "":
			b.RequireClaim(req.Claim, req.Values...)
		case len(req.Roles) > 0:
			b.RequireRole(req.Roles...)
		case req.AuthenticatedUser:
			b.RequireAuthenticatedUser()
		case req.Operation != "":
			b.RequireOperation(req.Operation)
		case req.Assertion != "":
			if l.cel != nil {
				if _, err := l.cel.Compile(req.Assertion); err != nil {
					return nil, fmt.Errorf("requirement %d of policy %s: %w", i, doc.Name, err)
				}
			}
			b.AddRequirements(&types.AssertionRequirement{Expression: req.Assertion})
		default:
			return nil, fmt.Errorf("requirement %d of policy %s is empty", i, doc.Name)
		}
	}

	return b.Build(), nil
}
