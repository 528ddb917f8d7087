package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("  \u201cBundlr\u201d \u2014 it\u2019s fast\u2026\n")...)
	out, err := CleanText(in, "product.md")
	require.NoError(t, err)
	assert.Equal(t, `"Bundlr" -- it's fast...`, out)
}

func TestCleanText_InvalidUTF8(t *testing.T) {
	out, err := CleanText([]byte("caf\xe9 menu"), "bad.txt")
	require.NoError(t, err)
	assert.Equal(t, "caf\uFFFD menu", out)
}

func TestCleanText_RejectsBinary(t *testing.T) {
	_, err := CleanText([]byte{'P', 'K', 0x03, 0x04, 0x00}, "archive.zip")
	assert.Error(t, err)
	assert.False(t, IsLikelyBinary([]byte("plain text")))
}
