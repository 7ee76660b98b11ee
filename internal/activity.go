package internal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tubelens/tubelens/internal/event"
	"github.com/tubelens/tubelens/pkg/logger"
)

type (
	broadcaster interface {
		BroadcastRunUpdate(uuid.UUID) error
		BroadcastRunComplete(uuid.UUID) error
		BroadcastRunFailed(uuid.UUID) error
	}

	// activityService relays run lifecycle events from the event bus to the
	// activity socket so connected clients see run state change in real time.
	activityService struct {
		broadcaster
		eventBus event.EventHandler
	}
)

func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	return &activityService{broadcaster: broadcaster, eventBus: eventBus}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.RunUpdateEvent, event.RunCompleteEvent, event.RunFailedEvent)

	log.Emit(logger.INFO, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			log.Emit(logger.INFO, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	runID, ok := ev.Payload.(uuid.UUID)
	if !ok {
		return errors.New("illegal payload (expected UUID)")
	}

	switch ev.Event {
	case event.RunUpdateEvent:
		return service.BroadcastRunUpdate(runID)
	case event.RunCompleteEvent:
		return service.BroadcastRunComplete(runID)
	case event.RunFailedEvent:
		return service.BroadcastRunFailed(runID)
	default:
		return errors.New("unknown event type")
	}
}
