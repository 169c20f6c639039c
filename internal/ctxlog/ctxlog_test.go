package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_DefaultWhenMissing(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWithLogger_NilKeepsContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithLogger(ctx, nil))
}

func TestWithJob_TagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithJob(WithLogger(context.Background(), logger), "job-42")

	FromContext(ctx).Info("hello", "stage", "prep")

	assert.Contains(t, buf.String(), "job_id=job-42")
	assert.Contains(t, buf.String(), "stage=prep")
}
