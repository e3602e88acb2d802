package ctxutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestData(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetRequestData(ctx))
	assert.Equal(t, uuid.Nil, PrincipalFrom(ctx))

	id := uuid.New()
	ctx = WithRequestData(ctx, &RequestData{TokenString: "tok", UserID: id})
	assert.Equal(t, id, PrincipalFrom(ctx))
	assert.Equal(t, "tok", GetRequestData(ctx).TokenString)
}

func TestTraceDataAndDefault(t *testing.T) {
	assert.NotNil(t, Default(nil))
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t", RequestID: "r"})
	td := GetTraceData(ctx)
	if assert.NotNil(t, td) {
		assert.Equal(t, "t", td.TraceID)
		assert.Equal(t, "r", td.RequestID)
	}
}
