package stringutil

import (
	"testing"

	"github.com/mezonai/mvnode/block"
	"github.com/stretchr/testify/assert"
)

func TestShortenLog(t *testing.T) {
	assert.Equal(t, "abc", ShortenLog("abc"))
	assert.Equal(t, "0123456789abcdef", ShortenLog("0123456789abcdef"))
	assert.Equal(t, "01234567...89abcdef", ShortenLog("0123456789xxxxxx89abcdef"))
}

func TestShort(t *testing.T) {
	var h block.HeaderHash
	h[0] = 0xab
	assert.Equal(t, "ab000000...00000000", Short(h))
}
