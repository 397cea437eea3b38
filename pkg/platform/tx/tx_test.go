package tx

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func TestWithTxNilLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))

	_, ok := From(ctx)
	assert.False(t, ok)
}

func TestFromReturnsStoredTx(t *testing.T) {
	stored := &sqlx.Tx{}
	ctx := WithTx(context.Background(), stored)

	got, ok := From(ctx)
	assert.True(t, ok)
	assert.Same(t, stored, got)
}
