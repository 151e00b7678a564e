package eventBus

import (
	"github.com/Layr-Labs/feeledger/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"go.uber.org/zap"
)

type EventBus struct {
	consumers *eventBusTypes.ConsumerList
	logger    *zap.Logger
}

func NewEventBus(l *zap.Logger) *EventBus {
	return &EventBus{
		consumers: eventBusTypes.NewConsumerList(),
		logger:    l,
	}
}

func (eb *EventBus) Subscribe(consumer *eventBusTypes.Consumer) {
	eb.consumers.Add(consumer)
	eb.logger.Sugar().Debugw("Subscribed consumer", zap.String("consumerId", string(consumer.Id)))
}

func (eb *EventBus) Unsubscribe(consumer *eventBusTypes.Consumer) {
	eb.consumers.Remove(consumer)
	eb.logger.Sugar().Infow("Unsubscribed consumer", zap.String("consumerId", string(consumer.Id)))
}

// Publish never blocks: a consumer whose channel is full misses the event,
// and a consumer whose context has ended is dropped.
func (eb *EventBus) Publish(event *eventBusTypes.Event) {
	eb.logger.Sugar().Debugw("Publishing event", zap.String("eventName", event.Name))
	for _, consumer := range eb.consumers.GetAll() {
		if consumer.Done() {
			eb.Unsubscribe(consumer)
			continue
		}
		if !consumer.Wants(event.Name) {
			continue
		}
		if consumer.Channel == nil {
			eb.logger.Sugar().Debugw("Consumer channel is nil", zap.String("consumerId", string(consumer.Id)))
			continue
		}
		select {
		case consumer.Channel <- event:
			eb.logger.Sugar().Debugw("Published event to consumer",
				zap.String("consumerId", string(consumer.Id)),
				zap.String("eventName", event.Name),
			)
		default:
			eb.logger.Sugar().Debugw("No receiver available, or channel is full",
				zap.String("consumerId", string(consumer.Id)),
				zap.String("eventName", event.Name),
			)
		}
	}
}

// PublishLedgerEvents publishes the events of one committed call in order,
// followed by a CallCommitted marker.
func (eb *EventBus) PublishLedgerEvents(callId string, kind string, epoch uint64, events []*ledger.Event) {
	for i, e := range events {
		eb.Publish(&eventBusTypes.Event{
			Name: string(e.Name),
			Data: &eventBusTypes.LedgerEventData{
				CallId:   callId,
				LogIndex: i,
				Event:    e,
			},
		})
	}
	eb.Publish(&eventBusTypes.Event{
		Name: eventBusTypes.CallCommittedEventName,
		Data: &eventBusTypes.CallCommittedData{
			CallId: callId,
			Kind:   kind,
			Epoch:  epoch,
		},
	})
}
