package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is one attemptable unit of database work.
type Operation func() error

// IsRetryable decides whether a failed attempt is worth repeating.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 3

// Try runs op, retrying duplicate key collisions up to DefaultMaxRetries
// times. Collisions on generated values resolve themselves on the next
// attempt; collisions on caller-supplied values keep failing and surface
// after the last attempt.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op once plus up to maxRetries repeats for errors that
// isRetryable accepts, with a short incremental backoff between attempts.
// Any other error returns immediately.
func WithRetries(op Operation, maxRetries int, isRetryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		if !isRetryable(err) {
			return err
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsMongoDuplicateKeyError reports whether err carries a MongoDB unique
// index violation (code 11000), in either a plain or bulk write exception.
func IsMongoDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
