package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"incidentbridge/src/pagerduty/client"
	"incidentbridge/src/pagerduty/client/pagerdutytest"
	"incidentbridge/src/pagerduty/ledger"
	"incidentbridge/src/pagerduty/notify"
	"incidentbridge/src/pagerduty/routing"
	"incidentbridge/src/pagerduty/types"
	common "incidentbridge/src/shared"
)

const alarmARN = "arn:aws:cloudwatch:us-east-1:123456789012:alarm:lambda-duration-alarm"

const routingSecret = `{
  "apiToken": "pd-api-token",
  "services": {
    "INFRASTRUCTURE": {"routingKey": "abc123", "team": "T1", "serviceId": "S1", "escalationPolicyId": "E1", "defaultPriorityId": "P2"}
  }
}`

type countingSource struct {
	mu    sync.Mutex
	data  string
	err   error
	calls int
}

func (s *countingSource) Name() string { return "test" }

func (s *countingSource) Fetch(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.data), nil
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeRecorder struct {
	entries []ledger.Entry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, entry ledger.Entry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

type fakeNotifier struct {
	failures []notify.Failure
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, failure notify.Failure) error {
	f.failures = append(f.failures, failure)
	return f.err
}

func inboundEvent(t *testing.T, state types.AlarmState) types.InboundEvent {
	t.Helper()
	detail, err := json.Marshal(types.AlarmDetail{
		AlarmName:     "lambda-duration-alarm",
		State:         types.AlarmDetailState{Value: state, Reason: "Threshold Crossed", Timestamp: "2024-03-01T10:15:29.512+0000"},
		PreviousState: types.AlarmDetailState{Value: types.StateOK},
	})
	require.NoError(t, err)

	return types.InboundEvent{
		CloudWatchEvent: events.CloudWatchEvent{
			Source:     "aws.cloudwatch",
			DetailType: "CloudWatch Alarm State Change",
			AccountID:  "123456789012",
			Region:     "us-east-1",
			Resources:  []string{alarmARN},
			Detail:     detail,
		},
		PDConfig: types.RoutingMetadata{Severity: "critical", ServiceKey: "INFRASTRUCTURE"},
	}
}

type fixture struct {
	source   *countingSource
	server   *pagerdutytest.Server
	recorder *fakeRecorder
	notifier *fakeNotifier
	logs     *observer.ObservedLogs
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source:   &countingSource{data: routingSecret},
		server:   pagerdutytest.NewServer(),
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
	}
	t.Cleanup(f.server.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs

	resolver := routing.NewResolver(routing.NewCache(f.source))
	sender := client.New(f.server.URL, time.Second)
	f.handler = New(resolver, sender, zap.New(core),
		WithLedger(f.recorder),
		WithNotifier(f.notifier),
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 10, 15, 31, 0, time.UTC) }))
	return f
}

func TestHandle_Alarm(t *testing.T) {
	f := newFixture(t)
	ctx := lambdacontext.NewContext(common.TestContext(t, "handler-test"), &lambdacontext.LambdaContext{AwsRequestID: "req-123"})

	result, err := f.handler.Handle(ctx, inboundEvent(t, types.StateAlarm))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "Event processed", result.Message)
	assert.Equal(t, alarmARN, result.DedupKey)
	assert.Equal(t, "lambda-duration-alarm", result.AlarmName)
	assert.Equal(t, types.ActionTrigger, result.Action)
	assert.Equal(t, "INFRASTRUCTURE", result.ServiceKey)
	assert.Equal(t, "2024-03-01T10:15:31Z", result.Timestamp)

	requests := f.server.Requests()
	require.Len(t, requests, 1)
	sent := requests[0]
	assert.Equal(t, "Token token=pd-api-token", sent.Header.Get("Authorization"))
	assert.Equal(t, "abc123", sent.Event.RoutingKey)
	assert.Equal(t, alarmARN, sent.Event.DedupKey)
	assert.Equal(t, "P2", sent.Event.Payload.CustomDetails["priority"])

	require.Len(t, f.recorder.entries, 1)
	entry := f.recorder.entries[0]
	assert.Equal(t, alarmARN, entry.DedupKey)
	assert.Equal(t, types.ActionTrigger, entry.Action)
	assert.Equal(t, "req-123", entry.RequestID)
	assert.Equal(t, "success", entry.Status)

	assert.Empty(t, f.notifier.failures)

	delivered := f.logs.FilterMessage("Incident event delivered").All()
	require.Len(t, delivered, 1)
	fields := delivered[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "trigger", fields["action"])
}

func TestHandle_ActionPerState(t *testing.T) {
	testCases := []struct {
		state  types.AlarmState
		action types.EventAction
	}{
		{state: types.StateAlarm, action: types.ActionTrigger},
		{state: types.StateOK, action: types.ActionResolve},
		{state: types.StateInsufficientData, action: types.ActionAcknowledge},
	}

	for _, tc := range testCases {
		t.Run(string(tc.state), func(t *testing.T) {
			f := newFixture(t)
			result, err := f.handler.Handle(context.Background(), inboundEvent(t, tc.state))
			require.NoError(t, err)
			assert.Equal(t, tc.action, result.Action)
			assert.Equal(t, tc.action, f.server.Requests()[0].Event.EventAction)
			assert.Equal(t, alarmARN, f.server.Requests()[0].Event.DedupKey)
		})
	}
}

func TestHandle_ValidationFailureSkipsSecretRead(t *testing.T) {
	f := newFixture(t)
	in := inboundEvent(t, "INVALID_STATE")

	result, err := f.handler.Handle(context.Background(), in)
	require.ErrorIs(t, err, types.ErrInvalidEvent)
	assert.Zero(t, result)

	assert.Equal(t, 0, f.source.Calls())
	assert.Empty(t, f.server.Requests())
	assert.Empty(t, f.recorder.entries)

	require.Len(t, f.notifier.failures, 1)
	assert.Equal(t, types.KindInvalidEvent, f.notifier.failures[0].Kind)
	assert.Equal(t, "lambda-duration-alarm", f.notifier.failures[0].AlarmName)

	failed := f.logs.FilterMessage("Alarm forwarding failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "InvalidEvent", failed[0].ContextMap()["error_kind"])
}

func TestHandle_UnknownServiceKey(t *testing.T) {
	f := newFixture(t)
	in := inboundEvent(t, types.StateAlarm)
	in.PDConfig.ServiceKey = "DATABASE"

	_, err := f.handler.Handle(context.Background(), in)
	require.ErrorIs(t, err, types.ErrServiceNotFound)
	assert.Contains(t, err.Error(), "DATABASE")
	assert.Empty(t, f.server.Requests())
}

func TestHandle_SecretStoreFailureNotCached(t *testing.T) {
	f := newFixture(t)
	f.source.err = types.SecretStoreError("pagerduty/alarm-routing", errors.New("throttled"))

	_, err := f.handler.Handle(context.Background(), inboundEvent(t, types.StateAlarm))
	require.ErrorIs(t, err, types.ErrSecretStore)

	f.source.mu.Lock()
	f.source.err = nil
	f.source.mu.Unlock()

	_, err = f.handler.Handle(context.Background(), inboundEvent(t, types.StateAlarm))
	require.NoError(t, err)
	_, err = f.handler.Handle(context.Background(), inboundEvent(t, types.StateOK))
	require.NoError(t, err)

	assert.Equal(t, 2, f.source.Calls())
}

func TestHandle_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.server.Respond(http.StatusInternalServerError, `internal error`)

	_, err := f.handler.Handle(context.Background(), inboundEvent(t, types.StateAlarm))
	require.ErrorIs(t, err, types.ErrDelivery)
	assert.Contains(t, err.Error(), "internal error")
	assert.Empty(t, f.recorder.entries)

	require.Len(t, f.notifier.failures, 1)
	assert.True(t, f.notifier.failures[0].Retryable)
}

func TestHandle_MalformedResponse(t *testing.T) {
	f := newFixture(t)
	f.server.Respond(http.StatusAccepted, `{}`)

	_, err := f.handler.Handle(context.Background(), inboundEvent(t, types.StateAlarm))
	require.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestHandle_LedgerFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.recorder.err = errors.New("table not found")
	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-ledger"})

	result, err := f.handler.Handle(ctx, inboundEvent(t, types.StateAlarm))
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)

	warnings := f.logs.FilterMessage("Failed to record delivered incident event").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "req-ledger", warnings[0].ContextMap()["request_id"])
}

func TestHandle_NotifierFailureReturnsPipelineError(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("sns down")
	in := inboundEvent(t, types.StateAlarm)
	in.PDConfig.Severity = ""

	_, err := f.handler.Handle(context.Background(), in)
	require.ErrorIs(t, err, types.ErrInvalidEvent)
	assert.NotContains(t, err.Error(), "sns down")
	assert.Len(t, f.logs.FilterMessage("Failed to publish failure notification").All(), 1)
}

func TestHandle_WithoutOptionalIntegrations(t *testing.T) {
	server := pagerdutytest.NewServer()
	defer server.Close()

	h := New(routing.NewResolver(routing.NewCache(routing.StaticSource(routingSecret))), client.New(server.URL, time.Second), nil)
	_, err := h.Handle(context.Background(), inboundEvent(t, types.StateAlarm))
	require.NoError(t, err)

	in := inboundEvent(t, types.StateAlarm)
	in.PDConfig.ServiceKey = ""
	_, err = h.Handle(context.Background(), in)
	assert.ErrorIs(t, err, types.ErrInvalidEvent)
}

func TestPrepare_DoesNotSend(t *testing.T) {
	f := newFixture(t)

	req, err := f.handler.Prepare(context.Background(), inboundEvent(t, types.StateInsufficientData))
	require.NoError(t, err)

	assert.Equal(t, types.ActionAcknowledge, req.EventAction)
	assert.Equal(t, "P2", req.Priority)
	assert.Empty(t, f.server.Requests())
	assert.Empty(t, f.recorder.entries)
}

func TestHandler_Stages(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"normalize", "validate", "resolve", "map", "send", "record"}, f.handler.Stages())
}
