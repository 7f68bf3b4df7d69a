package otelsetup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/otelsetup"
)

func TestSetupReturnsUsableProviders(t *testing.T) {
	ctx := context.Background()
	providers, err := otelsetup.Setup(ctx, "ipe-test")
	require.NoError(t, err)
	require.NotNil(t, providers)

	tracer := providers.Tracer("ipe-test")
	assert.NotNil(t, tracer)

	_, span := tracer.Start(ctx, "unit-test-span")
	span.End()

	meter := providers.Meter("ipe-test")
	assert.NotNil(t, meter)

	require.NoError(t, providers.Shutdown(ctx))
}
