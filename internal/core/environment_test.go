package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	t.Run("Should accept names and short forms", func(t *testing.T) {
		assert.Equal(t, Production, ParseEnvironment(" PROD "))
		assert.Equal(t, Production, ParseEnvironment("production"))
		assert.Equal(t, Testing, ParseEnvironment("test"))
		assert.Equal(t, Staging, ParseEnvironment("staging"))
	})

	t.Run("Should fall back to development", func(t *testing.T) {
		assert.Equal(t, Development, ParseEnvironment(""))
		assert.Equal(t, Development, ParseEnvironment("qa"))
		assert.False(t, ParseEnvironment("qa").IsProduction())
	})
}
