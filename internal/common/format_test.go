package common

import (
	"testing"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5 ETH", FormatAmount(decimal.RequireFromString("1.50"), models.ChainETH))
	assert.Equal(t, "200 NEAR", FormatAmount(decimal.NewFromInt(200), models.ChainNEAR))
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$6000.00", FormatUSD(decimal.NewFromInt(6000)))
	assert.Equal(t, "$0.36", FormatUSD(decimal.RequireFromString("0.3567")))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0xcol1", ShortHash("0xcol1"))
	assert.Equal(t, "0x123456…abcdef", ShortHash("0x1234567890000000000000abcdef"))
}
