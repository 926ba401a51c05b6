package script

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeBasic(t *testing.T) {
	out, err := Compose("print(2+2)", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "#!/usr/bin/env python3\n"))
	assert.Contains(t, out, "import sys\n")
	assert.Contains(t, out, "import traceback\n")
	assert.Contains(t, out, "try:\n    print(2+2)\n")
	assert.Contains(t, out, fmt.Sprintf("print(%q, file=sys.stderr)", ErrorPrefix))
	assert.Contains(t, out, "sys.exit(1)")
	// No context block without a context
	assert.NotContains(t, out, "globals().update")
}

func TestComposeIndentsMultilineSnippet(t *testing.T) {
	snippet := "x = 1\nif x:\n    print(x)"
	out, err := Compose(snippet, nil)
	require.NoError(t, err)

	assert.Contains(t, out, "try:\n    x = 1\n    if x:\n        print(x)\n")
}

func TestComposeContext(t *testing.T) {
	out, err := Compose("print(name, count)", map[string]any{
		"name":  "alice",
		"count": 3,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "globals().update(_context)")

	// The context travels as base64 JSON, never as interpolated source
	re := regexp.MustCompile(`base64\.b64decode\("([^"]+)"\)`)
	match := re.FindStringSubmatch(out)
	require.Len(t, match, 2)

	decoded, err := base64.StdEncoding.DecodeString(match[1])
	require.NoError(t, err)

	var roundtrip map[string]any
	require.NoError(t, json.Unmarshal(decoded, &roundtrip))
	assert.Equal(t, "alice", roundtrip["name"])
	assert.Equal(t, float64(3), roundtrip["count"])
}

func TestComposeContextNotInjectable(t *testing.T) {
	// A hostile value must not appear verbatim in the script body
	payload := "'''\nimport os\nos.system('rm -rf /')\n'''"
	out, err := Compose("print(v)", map[string]any{"v": payload})
	require.NoError(t, err)
	assert.NotContains(t, out, "rm -rf")
}

func TestComposeUnserializableContext(t *testing.T) {
	_, err := Compose("print(1)", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not JSON-serializable")
}

func TestComposeEmptySnippet(t *testing.T) {
	out, err := Compose("", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "try:\n    pass\nexcept Exception:")
}
