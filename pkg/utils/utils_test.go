package utils

import (
	"math"
	"order_lifecycle/internal/pkg/config"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationBound(t *testing.T) {
	p := Pagination{}
	offset, limit := p.Bound(10, 50)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 1, p.Page)

	p = Pagination{Page: 3, Limit: 500}
	offset, limit = p.Bound(10, 50)
	assert.Equal(t, 100, offset)
	assert.Equal(t, 50, limit)

	p = Pagination{Page: 2, Limit: 20}
	offset, limit = p.GetPageOffset()
	assert.Equal(t, 20, offset)
	assert.Equal(t, 20, limit)
}

func TestPaginationBoundClampsHugePage(t *testing.T) {
	p := Pagination{Page: math.MaxInt, Limit: 100}
	offset, limit := p.Bound(10, 100)
	assert.Equal(t, MaxPage, p.Page)
	assert.Equal(t, 100, limit)
	assert.Equal(t, (MaxPage-1)*100, offset)
	assert.GreaterOrEqual(t, offset, 0)
}

func TestTokenRoundTrip(t *testing.T) {
	config.GlobalConfig.JWT.Secret = "0123456789abcdef0123456789abcdef"
	config.GlobalConfig.JWT.Expire = 1

	token, expireAt, err := GenerateToken("shop-42", "shop", "Super Electronics")
	require.NoError(t, err)
	require.NotNil(t, expireAt)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "shop-42", claims.UserID)
	assert.Equal(t, "shop", claims.Role)
	assert.Equal(t, "Super Electronics", claims.Name)

	_, err = ParseToken(token + "x")
	assert.Error(t, err)
}
