package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3\n")
	assert.Contains(t, buf.String(), "v1.2.3")
	assert.Contains(t, buf.String(), "|_.__/")
}

func TestRenderer(t *testing.T) {
	plain, err := NewRenderer(false)("# Title")
	require.NoError(t, err)
	assert.Equal(t, "# Title", plain)

	styled, err := NewRenderer(true)("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, styled, "Title")
}
