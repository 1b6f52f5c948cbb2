package cargo

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs(t *testing.T) {
	args := BuildArgs("build", []string{"--release"})
	assert.Equal(t, []string{"build", "--release"}, args)
}

func TestBuildArgs_ClippyAddsJSONOutput(t *testing.T) {
	args := BuildArgs("clippy", []string{"--all-targets"})
	assert.Equal(t, []string{"clippy", "--message-format=json", "--all-targets"}, args)
}

func TestAnnotate_WithSpan(t *testing.T) {
	line := `{"reason":"compiler-message","message":{"message":"unused variable: x","level":"warning","spans":[{"file_name":"src/main.rs","line_start":4}]}}`

	var msg message
	require.NoError(t, json.Unmarshal([]byte(line), &msg))

	var out bytes.Buffer
	annotate(&out, msg)

	assert.Equal(t, "::warning file=src/main.rs,line=4::unused variable: x\n", out.String())
}

func TestAnnotate_ErrorLevel(t *testing.T) {
	var msg message
	msg.Message.Message = "mismatched types"
	msg.Message.Level = "error"

	var out bytes.Buffer
	annotate(&out, msg)

	assert.Equal(t, "::error::mismatched types\n", out.String())
}
