package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetenv(t *testing.T) {
	const key = "STAKING_REWARDS_TEST_KEY"

	assert.Equal(t, "fallback", Getenv(key, "fallback"))

	t.Setenv(key, "")
	assert.Empty(t, Getenv(key, "fallback"))

	t.Setenv(key, "/etc/staking/config.yml")
	assert.Equal(t, "/etc/staking/config.yml", Getenv(key, "fallback"))
}

func TestPtr(t *testing.T) {
	v := 42
	p := Ptr(v)
	v++
	assert.Equal(t, 42, *p)
}
