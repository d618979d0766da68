package events

import (
	"context"
	"time"

	"qrparking/pkg/kafka"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"
)

const (
	SchemaVersion = "1"
	Source        = "qrparking"

	// AllSlots is the slot id of events that touch many slots at once.
	AllSlots = "*"
)

type Type string

const (
	SlotReserved         Type = "slot.reserved"
	SlotExpired          Type = "slot.expired"
	SlotCancelled        Type = "slot.cancelled"
	OccupiedRequested    Type = "slot.occupied_requested"
	OccupiedApproved     Type = "slot.occupied_approved"
	OccupiedRejected     Type = "slot.occupied_rejected"
	LeavingRequested     Type = "slot.leaving_requested"
	PaymentReceived      Type = "slot.payment_received"
	SessionCompleted     Type = "slot.session_completed"
	SlotReleased         Type = "slot.released"
	SlotMaintenance      Type = "slot.maintenance"
	PendingRequestsReset Type = "slots.pending_requests_reset"
)

// LifecycleEvent describes one committed slot transition.
type LifecycleEvent struct {
	Type          Type             `json:"type"`
	SlotID        string           `json:"slot_id"`
	From          model.SlotStatus `json:"from,omitempty"`
	To            model.SlotStatus `json:"to,omitempty"`
	UserID        string           `json:"user_id,omitempty"`
	ActorID       string           `json:"actor_id,omitempty"`
	VehicleNumber string           `json:"vehicle_number,omitempty"`
	Cost          int64            `json:"cost,omitempty"`
	Affected      int64            `json:"affected,omitempty"`
	Version       int64            `json:"version"`
	OccurredAt    time.Time        `json:"occurred_at"`
	RequestID     string           `json:"-"`
}

// Publisher announces committed transitions. Implementations must not fail
// the caller: the transition is already stored when Publish runs.
type Publisher interface {
	Publish(ctx context.Context, event LifecycleEvent)
	Close() error
}

type kafkaPublisher struct {
	producer *kafka.Producer
	timeout  time.Duration
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, timeout time.Duration, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		timeout:  timeout,
		log:      log.With("component", "lifecycle_events"),
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event LifecycleEvent) {
	msg, err := kafka.NewMessage().
		WithKey(event.SlotID).
		WithEventType(string(event.Type)).
		WithCorrelationID(event.RequestID).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithTimestamp(event.OccurredAt).
		WithValue(event).
		Build()
	if err != nil {
		p.log.Error("Failed to build lifecycle event", "type", event.Type, "slot_id", event.SlotID, "error", err)
		return
	}

	// Detached from the request so a cancelled client does not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.producer.Publish(pubCtx, msg); err != nil {
		p.log.Warn("Lifecycle event not delivered",
			"type", event.Type,
			"slot_id", event.SlotID,
			"event_id", msg.GetEventID(),
			"error", err,
		)
	}
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

type noopPublisher struct{}

// Noop returns a publisher that drops every event.
func Noop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, LifecycleEvent) {}

func (noopPublisher) Close() error { return nil }
