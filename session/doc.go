// Package session manages per-session sandbox directories on the host.
//
// Each session id owns exactly one directory under a configurable base
// directory. The directory is bind-mounted read-write into the sandbox
// container, so files written by executed code persist on the host as
// artifacts, visible across executions within the same session. Sessions
// are never cleaned up implicitly; only Destroy removes them.
//
// Artifact reads defend against path traversal: relative paths containing
// ".." or absolute-path injection fail with ErrPathEscape.
package session
