package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeCreateAssignsID(t *testing.T) {
	var b BaseModel
	require.NoError(t, b.BeforeCreate(nil))
	_, err := uuid.Parse(b.ID)
	assert.NoError(t, err)

	preset := BaseModel{ID: "3f1c9b2e-8a4d-4c1e-9f7a-2b6d5e8c0a11"}
	require.NoError(t, preset.BeforeCreate(nil))
	assert.Equal(t, "3f1c9b2e-8a4d-4c1e-9f7a-2b6d5e8c0a11", preset.ID)
}

func TestNewIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
