package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullIdentityFormat(t *testing.T) {
	full := Full()
	assert.True(t, strings.HasPrefix(full, "loglens "+Release()+" ("))
	assert.True(t, strings.HasSuffix(full, ")"))
}

func TestShortRevTruncatesLongHashes(t *testing.T) {
	assert.Equal(t, "a3f8c2d", shortRev("a3f8c2d9b1e04f77"))
	assert.Equal(t, "abc", shortRev("abc"))
}
