package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedErr struct{}

func (codedErr) Error() string   { return "coded" }
func (codedErr) ErrorCode() Code { return CodeInvalidManifest }

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil is ok", nil, CodeOK},
		{"plain error", stderrors.New("boom"), CodeInternalError},
		{"structured", New(CodeFileExists, "occupied", nil), CodeFileExists},
		{"wrapped structured", fmt.Errorf("staging: %w", New(CodeUnauthorized, "denied", nil)), CodeUnauthorized},
		{"coder", fmt.Errorf("parse: %w", codedErr{}), CodeInvalidManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	inner := stderrors.New("disk full")

	assert.Equal(t, "writing file: disk full", New(CodeOutOfSpace, "writing file", inner).Error())
	assert.Equal(t, "writing file", New(CodeOutOfSpace, "writing file", nil).Error())
	assert.Equal(t, "disk full", New(CodeOutOfSpace, "", inner).Error())
	assert.Equal(t, "out_of_space", New(CodeOutOfSpace, "", nil).Error())
}

func TestUnwrap(t *testing.T) {
	inner := stderrors.New("root cause")
	err := fmt.Errorf("outer: %w", New(CodeInternalError, "middle", inner))

	assert.True(t, stderrors.Is(err, inner))
	assert.True(t, IsCode(err, CodeInternalError))
}
