package branding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddedValues(t *testing.T) {
	assert.Equal(t, "karazeh", CLIName())
	assert.Equal(t, ".kzh", HomeDir())
	assert.Equal(t, "KZH", EnvPrefix())
	assert.Equal(t, "http://localhost:9393", DefaultHost())
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "KZH_HOST", EnvVar("host"))
	assert.Equal(t, "KZH_ROOT_PATH", EnvVar("root_path"))
}
