// Package policy provides static import validation for Python snippets.
//
// The policy package parses a snippet into a Python syntax tree and checks
// every import statement's top-level module name against a configurable
// allow-list before the code is ever handed to a runtime. It is the only
// defense layer that runs before execution; runtime isolation is provided by
// the sandbox package.
//
// Usage:
//
//	gate := policy.New(logger)
//	verdict, err := gate.Validate("import requests")
//	if err != nil {
//	    // syntax error in the snippet
//	}
//	if !verdict.Allowed {
//	    fmt.Println(verdict.Message)
//	}
package policy
