package interceptor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/toolbridge/internal/ctxkeys"
	"github.com/BaSui01/toolbridge/types"
)

func TestPipeline_LogsCarryInvocation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p, err := New(types.InterceptorConfig{BaseURL: &types.BaseURLConfig{Default: "https://api.example.com"}},
		WithTransport(&recorder{}), WithLogger(zap.New(core)))
	require.NoError(t, err)

	ctx := ctxkeys.WithInvocationID(ctxkeys.WithTool(context.Background(), "pets"), "inv-42")
	_, err = p.Request(ctx, "GET", "/pets", RequestOptions{})
	require.NoError(t, err)

	entries := logs.FilterMessage("backend request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "pets", fields["tool"])
	assert.Equal(t, "inv-42", fields["invocation_id"])
	assert.Equal(t, int64(200), fields["status"])
}

func TestCallFields_Empty(t *testing.T) {
	fields := callFields(context.Background(), zap.String("method", "GET"))
	assert.Len(t, fields, 1)
}
