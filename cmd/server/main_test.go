package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenAddr(t *testing.T) {
	t.Setenv("CONVEYOR_ADDR", "")
	t.Setenv("PORT", "")
	assert.Equal(t, ":8080", listenAddr(""))
	assert.Equal(t, ":9000", listenAddr(":9000"))

	t.Setenv("PORT", "7777")
	assert.Equal(t, ":7777", listenAddr(""))

	t.Setenv("CONVEYOR_ADDR", "127.0.0.1:6060")
	assert.Equal(t, "127.0.0.1:6060", listenAddr(""))

	// The flag beats the environment.
	assert.Equal(t, ":9000", listenAddr(":9000"))
}
