package ledgerService

import (
	"context"
	"errors"
)

var ErrServiceClosed = errors.New("ledger service is closed")

// Process runs calls one at a time until Close is called.
func (s *Service) Process() {
	for {
		select {
		case <-s.done:
			s.logger.Sugar().Infow("Closing ledger call queue")
			return
		case msg := <-s.queue:
			response := s.processMessage(msg)

			if msg.ResponseChan != nil {
				select {
				case msg.ResponseChan <- response:
				default:
					s.logger.Sugar().Infow("No receiver for response, dropping", "kind", msg.Data.Kind)
				}
			}
		}
	}
}

// enqueueAndWait runs the call on the queue and waits for its result or for
// ctx to end. An abandoned call still runs. A call issued while another call
// holds the queue (from a transfer callback) runs inline inside that call.
func (s *Service) enqueueAndWait(ctx context.Context, data *CallData) (*CallResult, error) {
	if frameFromContext(ctx) != nil {
		response := s.processMessage(&CallMessage{Ctx: ctx, Data: data})
		return response.Data, response.Error
	}

	select {
	case <-s.done:
		return nil, ErrServiceClosed
	default:
	}

	responseChan := make(chan *CallResponse, 1)
	msg := &CallMessage{
		Ctx:          context.WithoutCancel(ctx),
		Data:         data,
		ResponseChan: responseChan,
	}

	select {
	case s.queue <- msg:
	case <-s.done:
		return nil, ErrServiceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case response := <-responseChan:
		return response.Data, response.Error
	case <-ctx.Done():
		s.logger.Sugar().Debugw("Stopped waiting for ledger call", "kind", data.Kind)
		return nil, ctx.Err()
	}
}

func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.logger.Sugar().Infow("Closing ledger service")
		close(s.done)
	})
}
