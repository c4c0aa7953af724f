package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_KeepsInnerCode(t *testing.T) {
	inner := ConfigInvalid("SAMPLE_SIZE must be positive")
	err := Wrap(inner, "failed to load configuration")

	assert.Equal(t, CodeConfigInvalid, GetCode(err))
	assert.True(t, stderrors.Is(err, inner))
	assert.Equal(t, "failed to load configuration: SAMPLE_SIZE must be positive", err.Error())
}

func TestWrap_PlainErrorIsInternal(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrapf(cause, "write %s", "ledger")

	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestExternalServiceError(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := ExternalServiceError("mlflow", cause)

	assert.Equal(t, CodeExternalService, GetCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "UNKNOWN", GetCode(cause))
}
