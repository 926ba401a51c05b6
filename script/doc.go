// Package script composes runnable Python scripts from raw snippets.
//
// The script package turns a user-provided snippet plus an optional context
// mapping into a single self-contained Python file: a fixed preamble, safe
// context rehydration via JSON, and a guarded block that reports failures on
// stderr and exits non-zero. The output depends only on the Python standard
// library.
package script
