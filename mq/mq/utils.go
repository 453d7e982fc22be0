package mq

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Subscriber is anything that can be subscribed to and unsubscribed from.
// M is the message type it delivers.
type Subscriber[M any] interface {
	Subscribe(uuid.UUID) (uuid.UUID, <-chan M, error)
	DeSubscribe(id uuid.UUID) error
}

// SubscribeProcessor subscribes service to topicId and pipes every message
// through transformFunc into outputStream until ctx is done or the input
// closes. outputStream is closed on exit.
//
// transformFunc returns skip=true to drop a message; errors drop it as well.
func SubscribeProcessor[S Subscriber[M], M any, O any](
	topicId uuid.UUID,
	ctx context.Context,
	service S,
	transformFunc func(msg M) (O, bool, error),
	outputStream chan<- O,
) {
	go func() {
		uid, inputCh, err := service.Subscribe(topicId)
		if err != nil {
			log.Printf("Error subscribing to topic %s: %v", topicId, err)
			close(outputStream)
			return
		}

		defer func() {
			if err := service.DeSubscribe(uid); err != nil {
				log.Printf("Error de-subscribing %s: %v", uid, err)
			}
			close(outputStream)
		}()

		for {
			select {
			case msg, ok := <-inputCh:
				if !ok {
					// parent close channel
					return
				}

				output, skip, err := transformFunc(msg)
				if err != nil || skip {
					continue
				}

				select {
				case outputStream <- output:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}
