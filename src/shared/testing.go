package common

import (
	"context"
	"testing"

	"github.com/aws/aws-xray-sdk-go/xray"
)

const testTraceHeader = "Root=1-5e1b4151-5ac6c58a52934f1124456789;Parent=1234567890123456;Sampled=1"

// TestContext returns a context carrying a root X-Ray segment so traced code
// can open subsegments outside Lambda. The segment is closed on test cleanup.
func TestContext(t testing.TB, segmentName string) context.Context {
	t.Helper()
	t.Setenv("_X_AMZN_TRACE_ID", testTraceHeader)

	ctx, seg := xray.BeginSegment(context.Background(), segmentName)
	t.Cleanup(func() {
		seg.Close(nil)
	})
	return ctx
}
