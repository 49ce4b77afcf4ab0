package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	clone := Clone(ErrSessionClosed, "closed early")

	assert.True(t, errors.Is(clone, ErrSessionClosed))
	assert.False(t, errors.Is(clone, ErrTokenMismatch))
	assert.Equal(t, "closed early", clone.Message)
	assert.Equal(t, "Session Closed.", ErrSessionClosed.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.True(t, errors.Is(appErr, sql.ErrConnDone))
}

func TestFromErrorFindsNested(t *testing.T) {
	wrapped := fmt.Errorf("scan: %w", ErrAlreadyCheckedIn)

	appErr := FromError(wrapped)

	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "Already Checked In!", appErr.Message)
}
