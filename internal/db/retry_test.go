package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func duplicateKeyError(value string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: "E11000 duplicate key error dup key: { : \"" + value + "\" }",
	}}}
}

func TestWithRetriesFirstAttemptSucceeds(t *testing.T) {
	var calls int
	err := WithRetries(func() error {
		calls++
		return nil
	}, 3, IsMongoDuplicateKeyError)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetriesNonRetryableReturnsImmediately(t *testing.T) {
	var calls int
	boom := errors.New("connection reset")
	err := WithRetries(func() error {
		calls++
		return boom
	}, 3, IsMongoDuplicateKeyError)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetriesExhaustsOnPersistentCollision(t *testing.T) {
	// A collision on a caller-supplied value (an email, say) never resolves;
	// the error must surface after the final attempt.
	var calls int
	err := WithRetries(func() error {
		calls++
		return duplicateKeyError("taken@example.com")
	}, 3, IsMongoDuplicateKeyError)

	require.Error(t, err)
	assert.True(t, IsMongoDuplicateKeyError(err))
	assert.Equal(t, 4, calls)
}

func TestWithRetriesCollisionResolves(t *testing.T) {
	// A collision on a generated value resolves when the next attempt draws
	// a fresh one.
	var calls int
	err := WithRetries(func() error {
		calls++
		if calls < 3 {
			return duplicateKeyError("generated")
		}
		return nil
	}, 3, IsMongoDuplicateKeyError)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsMongoDuplicateKeyError(t *testing.T) {
	assert.True(t, IsMongoDuplicateKeyError(duplicateKeyError("x")))
	assert.True(t, IsMongoDuplicateKeyError(mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Code: 11000}}},
	}))
	assert.False(t, IsMongoDuplicateKeyError(errors.New("other")))
	assert.False(t, IsMongoDuplicateKeyError(mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Code: 121}},
	}))
}
