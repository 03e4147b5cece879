package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnrecognizedUnitError(t *testing.T) {
	err := fmt.Errorf("normalize: %w", &UnrecognizedUnitError{Unit: "xyz"})

	assert.ErrorIs(t, err, ErrUnrecognizedUnit)
	assert.NotErrorIs(t, err, ErrInvalidListing)

	var target *UnrecognizedUnitError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, "xyz", target.Unit)
	assert.Contains(t, err.Error(), `"xyz"`)
}

func TestInvalidListingError(t *testing.T) {
	withID := &InvalidListingError{ListingID: "7", Reason: "price must not be negative"}
	assert.ErrorIs(t, withID, ErrInvalidListing)
	assert.Equal(t, "invalid listing 7: price must not be negative", withID.Error())

	withoutID := &InvalidListingError{Reason: "unit is empty"}
	assert.Equal(t, "invalid listing: unit is empty", withoutID.Error())
}

func TestNewCanceledError(t *testing.T) {
	err := NewCanceledError(context.Canceled)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)

	deadline := NewCanceledError(context.DeadlineExceeded)
	assert.ErrorIs(t, deadline, ErrCanceled)
	assert.ErrorIs(t, deadline, context.DeadlineExceeded)
}
