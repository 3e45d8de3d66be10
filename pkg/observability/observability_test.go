package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "riskmap", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Enabled)
}

func TestNewDisabled(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, finish := p.TrackOperation(context.Background(), "dataset.load", attribute.String("source", "risk"))
	require.NotNil(t, ctx)
	finish(nil)

	_, finish = p.TrackOperation(context.Background(), "dataset.load")
	finish(errors.New("boom"))

	p.RecordReload(context.Background(), "published")
	p.RecordCacheLookup(context.Background(), true)
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	_, finish := p.TrackOperation(context.Background(), "render")
	finish(nil)
	p.RecordReload(context.Background(), "rejected")
	p.RecordCacheLookup(context.Background(), false)
	assert.NotNil(t, p.Tracer())
}
