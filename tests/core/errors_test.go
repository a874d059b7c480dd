package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kgraphio/tempomem-go/pkg/core"
)

func TestEngineErrorFormat(t *testing.T) {
	err := &core.EngineError{
		Op:  "RecordQuery",
		Err: core.ErrInvalidInput,
	}
	assert.Equal(t, "tempomem: RecordQuery: invalid input", err.Error())
}

func TestEngineErrorUnwrap(t *testing.T) {
	err := core.NewEngineError("Evolve", core.ErrNotFound)
	assert.ErrorIs(t, err, core.ErrNotFound)

	var engineErr *core.EngineError
	assert.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "Evolve", engineErr.Op)
}

func TestNewEngineErrorNil(t *testing.T) {
	assert.Nil(t, core.NewEngineError("Anything", nil))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		core.ErrNotFound,
		core.ErrInvalidInput,
		core.ErrUpstreamUnavailable,
		core.ErrInvalidConfig,
		core.ErrStorageOperation,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}
