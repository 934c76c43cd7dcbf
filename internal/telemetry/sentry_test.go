package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_ChildOfTransaction(t *testing.T) {
	ctx, tx := StartTransaction(context.Background(), "POST /chat/stream", "http.server")
	defer tx.End()

	childCtx, span := StartSpan(ctx, "reasoning.analyze", SpanAttributes{Intent: "search", Operation: "classify"})
	defer span.End()

	require.NotNil(t, span.inner)
	assert.Equal(t, "search", span.inner.Tags["intent"])
	assert.Equal(t, "classify", span.inner.Data["operation"])
	assert.Equal(t, span.inner, sentry.SpanFromContext(childCtx))
	assert.Equal(t, tx.inner.SpanID, span.inner.ParentSpanID)
}

func TestSpan_NilInnerIsSafe(t *testing.T) {
	span := &Span{}

	span.SetStatus(sentry.SpanStatusOK)
	span.SetError(errors.New("boom"))
	span.End()
	assert.NotNil(t, span.Context())
}

func TestCaptureWithoutClient(t *testing.T) {
	ctx := sentry.SetHubOnContext(context.Background(), sentry.NewHub(nil, sentry.NewScope()))

	assert.NotPanics(t, func() {
		AddBreadcrumb(ctx, "ingest", "job 1")
		CaptureError(ctx, errors.New("boom"))
		AddBreadcrumb(context.Background(), "ingest", "job 2")
	})
}
