package nat64_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/nat64"
)

func TestIsNAT64(t *testing.T) {
	assert.True(t, nat64.IsNAT64("64:ff9b::c0a8:101"))
	assert.True(t, nat64.IsNAT64("2001:db8:64::c0a8:101"))
	assert.False(t, nat64.IsNAT64("192.168.1.1"))
	assert.False(t, nat64.IsNAT64("2001:4860:4860::8888"))
}

func TestExtractIPv4(t *testing.T) {
	v4, err := nat64.ExtractIPv4("2001:db8:64::c0a8:101")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", v4)

	_, err = nat64.ExtractIPv4("192.168.1.1")
	assert.Error(t, err)
}

func TestEqualPairing(t *testing.T) {
	a := "2001:db8:64::c0a8:101"
	b := "192.168.1.1"
	assert.True(t, nat64.Equal(a, b))
	assert.True(t, nat64.Equal(b, a), "equality must be symmetric")
	assert.True(t, nat64.Equal(a, a), "equality must be reflexive")

	c := "64:ff9b::c0a8:101"
	assert.True(t, nat64.Equal(a, c))
	// transitive: a==b, a==c => b==c
	assert.True(t, nat64.Equal(b, c), "equality must be transitive")

	assert.False(t, nat64.Equal("192.168.1.1", "192.168.1.2"))
	assert.False(t, nat64.Equal("2001:4860:4860::8888", "192.168.1.1"))
}
