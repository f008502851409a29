// internal/llmclient/router_test.go
package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/planopticon/planopticon/api/schemas"
)

func TestNewLLMRouter_RequiresBothTiers(t *testing.T) {
	fast := &MockLLMClient{Name: "fast"}

	_, err := NewLLMRouter(setupTestLogger(t), fast, nil)
	require.Error(t, err)

	_, err = NewLLMRouter(setupTestLogger(t), nil, fast)
	require.Error(t, err)
}

func TestRouterDispatch(t *testing.T) {
	fast := &MockLLMClient{Name: "fast"}
	powerful := &MockLLMClient{Name: "powerful"}

	router, err := NewLLMRouter(setupTestLogger(t), fast, powerful)
	require.NoError(t, err)

	t.Run("FastTier", func(t *testing.T) {
		req := schemas.GenerationRequest{UserPrompt: "q", Tier: schemas.TierFast}
		fast.On("Generate", mock.Anything, req).Return("fast answer", nil).Once()

		out, err := router.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "fast answer", out)
		fast.AssertExpectations(t)
	})

	t.Run("DefaultsToPowerful", func(t *testing.T) {
		req := schemas.GenerationRequest{UserPrompt: "q"}
		powerful.On("Generate", mock.Anything, req).Return("powerful answer", nil).Once()

		out, err := router.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "powerful answer", out)
		powerful.AssertExpectations(t)
	})

	t.Run("UnknownTier", func(t *testing.T) {
		req := schemas.GenerationRequest{UserPrompt: "q", Tier: schemas.ModelTier("mystery")}
		_, err := router.Generate(context.Background(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mystery")
	})
}

func TestRouterClose(t *testing.T) {
	t.Run("ClosesEachClientOnce", func(t *testing.T) {
		fast := &MockLLMClient{Name: "fast"}
		powerful := &MockLLMClient{Name: "powerful"}
		fast.On("Close").Return(nil).Once()
		powerful.On("Close").Return(nil).Once()

		router, err := NewLLMRouter(setupTestLogger(t), fast, powerful)
		require.NoError(t, err)
		require.NoError(t, router.Close())
		fast.AssertExpectations(t)
		powerful.AssertExpectations(t)
	})

	t.Run("SharedClientClosedOnce", func(t *testing.T) {
		shared := &MockLLMClient{Name: "shared"}
		shared.On("Close").Return(nil).Once()

		router, err := NewLLMRouter(setupTestLogger(t), shared, shared)
		require.NoError(t, err)
		require.NoError(t, router.Close())
		shared.AssertExpectations(t)
	})

	t.Run("PropagatesFirstError", func(t *testing.T) {
		fast := &MockLLMClient{Name: "fast"}
		powerful := &MockLLMClient{Name: "powerful"}
		closeErr := errors.New("close failed")
		fast.On("Close").Return(closeErr).Maybe()
		powerful.On("Close").Return(closeErr).Maybe()

		router, err := NewLLMRouter(setupTestLogger(t), fast, powerful)
		require.NoError(t, err)
		assert.ErrorIs(t, router.Close(), closeErr)
	})
}
