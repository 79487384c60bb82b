package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/leadharvest/internal/common"
)

func TestDefaultTimezoneEmbedded(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Account = common.AccountConfig{Login: "a", Password: "b", Subdomain: "c"}

	require.NoError(t, config.Validate())
	assert.Equal(t, "Europe/Moscow", config.Location().String())
}
