package script

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorPrefix marks diagnostic lines written to stderr by the composed
// script when the user snippet raises, so callers can tell an execution
// failure apart from ordinary output.
const ErrorPrefix = "EXECUTION ERROR:"

// Compose wraps a raw Python snippet into a complete, self-contained script.
//
// When context is non-nil its entries are reconstructed as global bindings
// inside the script. The mapping is carried as base64-encoded JSON and
// decoded with the runtime's own json module, so context values are never
// interpolated into the script as source text. Values must therefore be
// JSON-serializable; anything else is an error.
//
// The snippet itself runs inside a guarded block: on any exception the
// script prints a traceback to stderr, prefixed with ErrorPrefix, and exits
// non-zero so the executor can distinguish "ran but errored" from "ran
// cleanly".
func Compose(snippet string, context map[string]any) (string, error) {
	var b strings.Builder

	b.WriteString("#!/usr/bin/env python3\n")
	b.WriteString("# Sandboxed Python execution\n")
	b.WriteString("import sys\n")
	b.WriteString("import json\n")
	b.WriteString("import traceback\n")
	b.WriteString("\n")

	if len(context) > 0 {
		encoded, err := json.Marshal(context)
		if err != nil {
			return "", fmt.Errorf("context is not JSON-serializable: %w", err)
		}
		b.WriteString("# Load context\n")
		b.WriteString("import base64\n")
		fmt.Fprintf(&b, "_context = json.loads(base64.b64decode(%q).decode('utf-8'))\n",
			base64.StdEncoding.EncodeToString(encoded))
		b.WriteString("globals().update(_context)\n")
		b.WriteString("\n")
	}

	b.WriteString("# User code\n")
	b.WriteString("try:\n")
	if strings.TrimSpace(snippet) == "" {
		// An empty try block is a syntax error.
		b.WriteString("    pass\n")
	} else {
		for _, line := range strings.Split(snippet, "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("except Exception:\n")
	fmt.Fprintf(&b, "    print(%q, file=sys.stderr)\n", ErrorPrefix)
	b.WriteString("    traceback.print_exc()\n")
	b.WriteString("    sys.exit(1)\n")

	return b.String(), nil
}
