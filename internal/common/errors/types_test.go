package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: &AppError{Type: ErrTypeConfig, Message: "configuration is invalid"},
			want:     "config: configuration is invalid",
		},
		{
			name:     "error with code",
			appError: &AppError{Type: ErrTypeAuth, Message: "token rejected", Code: "AUTH001"},
			want:     "authentication: token rejected: code=AUTH001",
		},
		{
			name:     "error with cause",
			appError: &AppError{Type: ErrTypeDefinition, Message: "bad pattern", Cause: errors.New("missing )")},
			want:     "definition: bad pattern: cause=missing )",
		},
		{
			name: "error with sorted context",
			appError: &AppError{
				Type:    ErrTypeResolution,
				Message: "target not found",
				Context: map[string]interface{}{"rule_id": "r1", "item_id": "i1"},
			},
			want: "resolution: target not found: context={item_id=i1, rule_id=r1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, ErrTypeDefinition, DefinitionError("x", cause).Type)
	assert.Equal(t, ErrTypeResolution, ResolutionError("x", cause).Type)
	assert.Equal(t, ErrTypeNotification, NotificationError("x", cause).Type)
	assert.Equal(t, ErrTypeConnection, ConnectionError("x", cause).Type)
	assert.Equal(t, ErrTypeInternal, InternalError("x", cause).Type)
	assert.Equal(t, ErrTypeValidation, ValidationError("x").Type)
	assert.Equal(t, ErrTypeConfig, ConfigError("x").Type)
	assert.Equal(t, ErrTypeAuth, AuthError("x").Type)
	assert.Equal(t, "rule r1 not found", NotFoundError("rule r1").Message)
	assert.Equal(t, "no rules loaded for context web", CacheMissError("web").Message)
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := ResolutionError("cannot resolve", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestAppError_Builders(t *testing.T) {
	err := DefinitionError("bad template", nil).WithCode("TPL").WithContext("rule_id", "r9")

	assert.Equal(t, "TPL", err.Code)
	assert.Equal(t, "r9", err.Context["rule_id"])
}

func TestIsTypeAndGetType(t *testing.T) {
	wrapped := fmt.Errorf("reload: %w", CacheMissError("web"))

	assert.True(t, IsType(wrapped, ErrTypeCacheMiss))
	assert.False(t, IsType(wrapped, ErrTypeDefinition))
	assert.False(t, IsType(nil, ErrTypeDefinition))
	assert.False(t, IsType(errors.New("plain"), ErrTypeInternal))

	assert.Equal(t, ErrTypeCacheMiss, GetType(wrapped))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}
