// Package forwarder runs one alarm event through normalization, validation,
// routing, mapping and delivery.
package forwarder

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"incidentbridge/src/pagerduty/ledger"
	"incidentbridge/src/pagerduty/mapper"
	"incidentbridge/src/pagerduty/notify"
	"incidentbridge/src/pagerduty/types"
	"incidentbridge/src/pagerduty/validation"
	common "incidentbridge/src/shared"
)

type TableResolver interface {
	Table(ctx context.Context) (types.RoutingTable, error)
}

type Sender interface {
	SendEvent(ctx context.Context, apiToken string, req types.IncidentEventRequest) (types.IncidentEventResponse, error)
}

type Recorder interface {
	Record(ctx context.Context, entry ledger.Entry) error
}

type FailureNotifier interface {
	Notify(ctx context.Context, failure notify.Failure) error
}

// InvocationResult is returned to the Lambda runtime on success.
type InvocationResult struct {
	common.Response
	StatusCode int               `json:"statusCode"`
	DedupKey   string            `json:"dedupKey"`
	AlarmName  string            `json:"alarmName"`
	Action     types.EventAction `json:"action"`
	ServiceKey string            `json:"serviceKey"`
}

// invocation is the state threaded through the pipeline steps.
type invocation struct {
	inbound  types.InboundEvent
	event    types.AlarmStateChangeEvent
	table    types.RoutingTable
	service  types.ServiceRoutingConfig
	request  types.IncidentEventRequest
	response types.IncidentEventResponse
}

type Handler struct {
	resolver TableResolver
	sender   Sender
	logger   *zap.Logger
	ledger   Recorder
	notifier FailureNotifier
	now      func() time.Time

	prepare *common.Pipeline[invocation]
	deliver *common.Pipeline[invocation]
}

type Option func(*Handler)

// WithLedger records every delivered event. Ledger failures are logged only.
func WithLedger(r Recorder) Option {
	return func(h *Handler) {
		h.ledger = r
	}
}

// WithNotifier publishes a notification for every failed invocation.
func WithNotifier(n FailureNotifier) Option {
	return func(h *Handler) {
		h.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func New(resolver TableResolver, sender Sender, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		resolver: resolver,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.prepare = h.preparation()
	h.deliver = h.preparation().
		AddStep("send", h.send).
		AddStep("record", h.record)

	return h
}

func (h *Handler) preparation() *common.Pipeline[invocation] {
	return common.NewPipeline[invocation]().
		AddStep("normalize", h.normalize).
		AddStep("validate", h.validate).
		AddStep("resolve", h.resolve).
		AddStep("map", h.mapRequest)
}

// Handle is the Lambda handler. Any stage failure is returned as is; there is
// no partial success.
func (h *Handler) Handle(ctx context.Context, in types.InboundEvent) (InvocationResult, error) {
	logger := h.logger.With(zap.String("request_id", requestID(ctx)))

	result := common.WithTracedPipeline(ctx, "alarm-forwarder", h.deliver, invocation{inbound: in})
	inv := result.Value
	if result.IsFailure() {
		h.fail(ctx, logger, inv, result.Error)
		return InvocationResult{}, result.Error
	}

	logger.Info("Incident event delivered",
		zap.String("alarm_name", inv.event.RoutingMetadata.AlarmName),
		zap.String("dedup_key", inv.request.DedupKey),
		zap.String("action", string(inv.request.EventAction)),
		zap.String("service_key", inv.event.RoutingMetadata.ServiceKey),
		zap.String("priority", inv.request.Priority),
		zap.String("pagerduty_status", inv.response.Status))

	return InvocationResult{
		Response:   common.NewResponse(inv.response.Status, inv.response.Message, h.now()),
		StatusCode: http.StatusOK,
		DedupKey:   inv.request.DedupKey,
		AlarmName:  inv.event.RoutingMetadata.AlarmName,
		Action:     inv.request.EventAction,
		ServiceKey: inv.event.RoutingMetadata.ServiceKey,
	}, nil
}

// Prepare runs every stage up to and including mapping and returns the
// request that Handle would send.
func (h *Handler) Prepare(ctx context.Context, in types.InboundEvent) (types.IncidentEventRequest, error) {
	inv, err := h.prepare.Execute(ctx, invocation{inbound: in})
	if err != nil {
		return types.IncidentEventRequest{}, err
	}
	return inv.request, nil
}

func (h *Handler) normalize(_ context.Context, inv invocation) (invocation, error) {
	event, err := inv.inbound.Normalize()
	if err != nil {
		return inv, err
	}
	inv.event = event
	return inv, nil
}

func (h *Handler) validate(ctx context.Context, inv invocation) (invocation, error) {
	if err := validation.ValidateEvent(inv.event); err != nil {
		return inv, err
	}
	common.WithAnnotation(ctx, "alarm_name", inv.event.RoutingMetadata.AlarmName)
	common.WithAnnotation(ctx, "service_key", inv.event.RoutingMetadata.ServiceKey)
	return inv, nil
}

func (h *Handler) resolve(ctx context.Context, inv invocation) (invocation, error) {
	table, err := h.resolver.Table(ctx)
	if err != nil {
		return inv, err
	}
	svc, err := table.Lookup(inv.event.RoutingMetadata.ServiceKey)
	if err != nil {
		return inv, err
	}
	inv.table = table
	inv.service = svc
	return inv, nil
}

func (h *Handler) mapRequest(_ context.Context, inv invocation) (invocation, error) {
	req, err := mapper.MapToIncidentRequest(inv.event, inv.table)
	if err != nil {
		return inv, err
	}
	inv.request = req
	return inv, nil
}

func (h *Handler) send(ctx context.Context, inv invocation) (invocation, error) {
	resp, err := h.sender.SendEvent(ctx, inv.table.APIToken, inv.request)
	if err != nil {
		return inv, err
	}
	common.WithMetadata(ctx, "pagerduty_response", resp)
	inv.response = resp
	return inv, nil
}

// record never fails the invocation: the event has already been delivered.
func (h *Handler) record(ctx context.Context, inv invocation) (invocation, error) {
	if h.ledger == nil {
		return inv, nil
	}

	err := h.ledger.Record(ctx, ledger.Entry{
		DedupKey:    inv.request.DedupKey,
		Action:      inv.request.EventAction,
		AlarmName:   inv.event.RoutingMetadata.AlarmName,
		ServiceKey:  inv.event.RoutingMetadata.ServiceKey,
		State:       inv.event.CurrentState,
		Priority:    inv.request.Priority,
		Status:      inv.response.Status,
		Message:     inv.response.Message,
		RequestID:   requestID(ctx),
		DeliveredAt: h.now(),
	})
	if err != nil {
		h.logger.Warn("Failed to record delivered incident event",
			zap.String("request_id", requestID(ctx)),
			zap.String("dedup_key", inv.request.DedupKey),
			zap.Error(err))
	}
	return inv, nil
}

func (h *Handler) fail(ctx context.Context, logger *zap.Logger, inv invocation, err error) {
	md := inv.event.RoutingMetadata
	kind := types.KindOf(err)

	logger.Error("Alarm forwarding failed",
		zap.String("error_kind", string(kind)),
		zap.Bool("retryable", kind.Retryable()),
		zap.String("alarm_name", md.AlarmName),
		zap.String("service_key", md.ServiceKey),
		zap.Error(err))

	if h.notifier == nil {
		return
	}
	failure := notify.NewFailure(err, md, requestID(ctx), h.now())
	if nerr := h.notifier.Notify(ctx, failure); nerr != nil {
		logger.Warn("Failed to publish failure notification", zap.Error(nerr))
	}
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}

// Stages lists the pipeline steps in execution order.
func (h *Handler) Stages() []string {
	return h.deliver.Steps()
}
