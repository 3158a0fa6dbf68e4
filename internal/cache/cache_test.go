package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("hello"), Key("hello"))
	assert.NotEqual(t, Key("hello"), Key("hello "))
}

func TestKeyHasNamespace(t *testing.T) {
	assert.Contains(t, Key("anything"), "driftroute:response:")
}
