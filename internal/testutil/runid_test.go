package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialRunIDs(t *testing.T) {
	gen := NewSequentialRunIDs("merge")

	assert.Equal(t, "merge-0001", gen.Generate())
	assert.Equal(t, "merge-0002", gen.Generate())
}

func TestSequentialRunIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "run-0001", NewSequentialRunIDs("").Generate())
}
