package eventBusTypes

import (
	"context"
	"slices"
	"sync"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
)

type Event struct {
	Name string
	Data any
}

type ConsumerId string

type Consumer struct {
	Id      ConsumerId
	Context context.Context
	Channel chan *Event
	// Names limits delivery to the listed event names; empty receives everything.
	Names []string
}

func (c *Consumer) Wants(name string) bool {
	return len(c.Names) == 0 || slices.Contains(c.Names, name)
}

func (c *Consumer) Done() bool {
	if c.Context == nil {
		return false
	}
	select {
	case <-c.Context.Done():
		return true
	default:
		return false
	}
}

type ConsumerList struct {
	mu        sync.Mutex
	consumers []*Consumer
}

func NewConsumerList() *ConsumerList {
	return &ConsumerList{
		consumers: make([]*Consumer, 0),
	}
}

func (cl *ConsumerList) Add(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.consumers = append(cl.consumers, consumer)
}

func (cl *ConsumerList) Remove(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i, c := range cl.consumers {
		if c.Id == consumer.Id {
			cl.consumers = append(cl.consumers[:i], cl.consumers[i+1:]...)
			break
		}
	}
}

func (cl *ConsumerList) GetAll() []*Consumer {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return slices.Clone(cl.consumers)
}

type IEventBus interface {
	Subscribe(consumer *Consumer)
	Unsubscribe(consumer *Consumer)
	Publish(event *Event)
}

// LedgerEventData is the payload of every ledger event published after a
// call has been committed.
type LedgerEventData struct {
	CallId   string
	LogIndex int
	Event    *ledger.Event
}

// CallCommittedData is published once per committed call, after its events.
type CallCommittedData struct {
	CallId string
	Kind   string
	Epoch  uint64
}

const CallCommittedEventName = "CallCommitted"
