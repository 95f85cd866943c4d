package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartytownConfig(t *testing.T) {
	assert.True(t, partytownConfig(false).Debug, "debug build is the default")
	assert.False(t, partytownConfig(true).Debug)
	assert.Equal(t, "/~partytown/", partytownConfig(true).Lib)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, splitList(" 10.0.0.0/8, ,127.0.0.1 "))
}
