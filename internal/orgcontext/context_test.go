package orgcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestOrgIDFromContext(t *testing.T) {
	id, ok := OrgIDFromContext(WithOrgID(context.Background(), 42))
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	_, ok = OrgIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = OrgIDFromContext(WithOrgID(context.Background(), 0))
	assert.False(t, ok)
}

func TestParseOrgID(t *testing.T) {
	id, ok := ParseOrgID(" 1001 ")
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(1001), id)

	_, ok = ParseOrgID("abc")
	assert.False(t, ok)
}
