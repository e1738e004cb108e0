package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHooks_RegistrationOrder(t *testing.T) {
	var h Hooks
	var calls []string

	h.OnLost(func() { calls = append(calls, "lost-1") })
	h.OnLost(func() { calls = append(calls, "lost-2") })
	h.OnReestablished(func() { calls = append(calls, "back-1") })

	h.FireLost()
	h.FireReestablished()
	h.FireLost()

	assert.Equal(t, []string{"lost-1", "lost-2", "back-1", "lost-1", "lost-2"}, calls)
}
