package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(nil))
	assert.Equal(t, ContentHash([]byte(`{"classes":[]}`)), ContentHash([]byte(`{"classes":[]}`)))
	assert.NotEqual(t, ContentHash([]byte("a")), ContentHash([]byte("b")))
}
