package cdpconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaunchArgs(t *testing.T) {
	args := launchArgs(Options{DebugPort: 9333, Headless: true, UserData: "/tmp/profile"})

	assert.Contains(t, args, "--remote-debugging-port=9333")
	assert.Contains(t, args, "--headless")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.Equal(t, "about:blank", args[len(args)-1])
}

func TestLaunchArgsHeadful(t *testing.T) {
	args := launchArgs(Options{DebugPort: 9222})

	assert.NotContains(t, args, "--headless")
	for _, a := range args {
		assert.NotContains(t, a, "--user-data-dir")
	}
}

func TestLaunchWithMissingBinary(t *testing.T) {
	_, err := launch(Options{ChromePath: "/nonexistent/chrome-binary", DebugPort: 9222})
	assert.Error(t, err)
}
