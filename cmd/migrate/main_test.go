package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandArg(t *testing.T) {
	t.Run("parses the numeric argument", func(t *testing.T) {
		n, err := commandArg([]string{"step", "-2"}, "step")
		assert.NoError(t, err)
		assert.Equal(t, -2, n)
	})

	t.Run("rejects a missing argument", func(t *testing.T) {
		_, err := commandArg([]string{"force"}, "force")
		assert.ErrorContains(t, err, "force: missing argument")
	})

	t.Run("rejects a non-numeric argument", func(t *testing.T) {
		_, err := commandArg([]string{"step", "two"}, "step")
		assert.ErrorContains(t, err, `"two" is not a number`)
	})
}
