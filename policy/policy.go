package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-python/gpython/ast"
	"github.com/go-python/gpython/parser"
	"github.com/go-python/gpython/py"
	"go.uber.org/zap"
)

// ErrParse indicates the snippet could not be parsed as Python. A parse
// failure is never reported as an import violation.
var ErrParse = errors.New("syntax error in code")

// Verdict is the result of validating a snippet against the allow-list.
//
// When Allowed is false, Violations holds the full (possibly dotted) module
// names that failed the check, deduplicated and sorted lexicographically, and
// Message carries a human-readable diagnostic.
type Verdict struct {
	Allowed    bool
	Violations []string
	Message    string
}

// Gate statically validates the import statements of a Python snippet
// against an allow-list of top-level module names.
//
// The check is purely syntactic: it inspects import and from-import
// statements only. It does not catch dynamic loading via __import__,
// importlib, or aliases rebound at runtime; the container isolation boundary
// is the actual security perimeter, and this gate is a defense-in-depth layer
// in front of it.
type Gate struct {
	logger         *zap.Logger
	allowed        map[string]bool
	rejectRelative bool
}

// GateOption defines a functional option for Gate
type GateOption func(*Gate)

// WithModules overrides or extends the built-in allow-list. Entries with a
// true value grant the module, entries with a false value revoke it.
func WithModules(modules map[string]bool) GateOption {
	return func(g *Gate) {
		for name, permitted := range modules {
			g.allowed[name] = permitted
		}
	}
}

// WithRejectRelative controls whether relative imports (from . import x) are
// rejected. They carry no module name that could be checked statically, so
// accepting them would let a multi-file payload dodge review.
func WithRejectRelative(reject bool) GateOption {
	return func(g *Gate) {
		g.rejectRelative = reject
	}
}

// New creates a Gate with the built-in allow-list and optional overrides
func New(logger *zap.Logger, opts ...GateOption) *Gate {
	gate := &Gate{
		logger:         logger,
		allowed:        DefaultAllowList(),
		rejectRelative: true,
	}

	for _, opt := range opts {
		opt(gate)
	}

	return gate
}

// Validate parses the snippet and checks every import statement against the
// allow-list. Each name is checked by its top-level segment only, so
// "scipy.stats" passes when "scipy" is allowed. The bound alias name is
// irrelevant; only the source module path is inspected.
//
// A syntactically invalid snippet yields a rejecting Verdict and an error
// wrapping ErrParse.
func (g *Gate) Validate(code string) (Verdict, error) {
	tree, err := parser.ParseString(code, py.ExecMode)
	if err != nil {
		msg := fmt.Sprintf("Syntax error in code: %v", err)
		g.logger.Debug("snippet failed to parse", zap.Error(err))
		return Verdict{Allowed: false, Message: msg}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	violations := map[string]struct{}{}
	relative := false

	ast.Walk(tree, func(node ast.Ast) bool {
		switch stmt := node.(type) {
		case *ast.Import:
			for _, alias := range stmt.Names {
				name := string(alias.Name)
				if !g.allowed[topLevel(name)] {
					violations[name] = struct{}{}
				}
			}
		case *ast.ImportFrom:
			if stmt.Level > 0 {
				// Relative import: there is no absolute module name to
				// resolve statically.
				relative = true
				return true
			}
			name := string(stmt.Module)
			if name != "" && !g.allowed[topLevel(name)] {
				violations[name] = struct{}{}
			}
		}
		return true
	})

	if len(violations) == 0 && !(relative && g.rejectRelative) {
		return Verdict{Allowed: true, Violations: []string{}}, nil
	}

	names := make([]string, 0, len(violations))
	for name := range violations {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	if len(names) > 0 {
		parts = append(parts, fmt.Sprintf(
			"Import restriction violation: The following imports are not allowed: %s",
			strings.Join(names, ", ")))
	}
	if relative && g.rejectRelative {
		parts = append(parts,
			"Import restriction violation: relative imports cannot be statically verified and are not allowed")
	}
	parts = append(parts, allowedSummary)

	g.logger.Info("snippet rejected by import policy",
		zap.Strings("violations", names),
		zap.Bool("relative_import", relative))

	return Verdict{
		Allowed:    false,
		Violations: names,
		Message:    strings.Join(parts, "\n\n"),
	}, nil
}

// topLevel returns the segment before the first dot of a module path
func topLevel(module string) string {
	if idx := strings.IndexByte(module, '.'); idx >= 0 {
		return module[:idx]
	}
	return module
}
