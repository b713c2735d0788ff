package common

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// WithTracing runs fn inside an X-Ray subsegment. When the context carries no
// segment (local runs, tests without TestContext) fn still runs untraced.
func WithTracing(ctx context.Context, segmentName string, fn func(context.Context) error) error {
	tracedCtx, seg := xray.BeginSubsegment(ctx, segmentName)

	err := fn(tracedCtx)
	addSegmentError(seg, err)
	closeSegment(seg)

	return err
}

// WithTracedOperation is the value-returning form of WithTracing.
func WithTracedOperation[T any](ctx context.Context, operationName string, operation func(context.Context) (T, error)) (T, error) {
	var result T
	err := WithTracing(ctx, operationName, func(tracedCtx context.Context) error {
		var err error
		result, err = operation(tracedCtx)
		return err
	})
	return result, err
}

func WithAnnotation(ctx context.Context, key string, value interface{}) {
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddAnnotation(key, value)
	}
}

func WithMetadata(ctx context.Context, key string, value interface{}) {
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddMetadata(key, value)
	}
}

func addSegmentError(seg *xray.Segment, err error) {
	if seg != nil && err != nil {
		_ = seg.AddError(err)
	}
}

func closeSegment(seg *xray.Segment) {
	if seg != nil {
		seg.Close(nil)
	}
}
