package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	all := []error{ErrInvalidArgument, ErrUserExists, ErrInvalidCredentials, ErrUserNotFound, ErrInvalidToken}
	for i, err := range all {
		if err == nil {
			t.Fatalf("sentinel %d should not be nil", i)
		}
		for j, other := range all {
			if i != j && errors.Is(err, other) {
				t.Errorf("%v should not match %v", err, other)
			}
		}
	}
}

func TestWrappedSentinelStillMatches(t *testing.T) {
	err := fmt.Errorf("email is required: %w", ErrInvalidArgument)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Error("wrapped ErrInvalidArgument should match with errors.Is")
	}
}
