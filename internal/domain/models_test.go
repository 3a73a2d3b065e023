package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Malick44/ZemwifiApp-sub001/internal/domain"
)

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"pending", "accepted_by_user", "confirmed", "rejected", "expired"} {
		s, err := domain.ParseStatus(valid)
		assert.NoError(t, err)
		assert.Equal(t, domain.Status(valid), s)
	}

	_, err := domain.ParseStatus("settled")
	assert.Error(t, err)
	_, err = domain.ParseStatus("")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, domain.StatusPending.Terminal())
	assert.False(t, domain.StatusAcceptedByUser.Terminal())
	assert.True(t, domain.StatusConfirmed.Terminal())
	assert.True(t, domain.StatusRejected.Terminal())
	assert.True(t, domain.StatusExpired.Terminal())
}

func TestParseDecision(t *testing.T) {
	d, err := domain.ParseDecision("confirm")
	assert.NoError(t, err)
	assert.Equal(t, domain.DecisionConfirm, d)

	d, err = domain.ParseDecision("reject")
	assert.NoError(t, err)
	assert.Equal(t, domain.DecisionReject, d)

	_, err = domain.ParseDecision("accept")
	assert.Error(t, err)
}
