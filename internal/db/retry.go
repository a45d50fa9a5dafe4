package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable reports whether a failed operation may be attempted again.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 3

// Try executes an operation with default retry settings for transient errors.
// It uses DefaultMaxRetries and IsMongoTransientError.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoTransientError)
}

// WithRetries executes an operation, retrying it up to maxRetries times while
// retryable reports the error as transient. Other errors are returned immediately.
func WithRetries(op Operation, maxRetries int, retryable IsRetryable) error {
	var err error
	// Loop for initial attempt (attempt = 0) + maxRetries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			break
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond) // Simple incremental backoff
	}
	return err
}

// IsMongoTransientError checks if an error from MongoDB is worth retrying:
// network errors, timeouts and errors labelled transient by the server.
func IsMongoTransientError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("RetryableWriteError")
	}
	return false
}
