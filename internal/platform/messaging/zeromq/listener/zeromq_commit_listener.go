package listener

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-zeromq/zmq4"
	json "github.com/json-iterator/go"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/messaging/zeromq/message"
)

const CommitTopic = "commit"

// ZeromqCommitListener subscribes to one or more commit feeds and hands
// each event to a handler. Used by read replicas and the feed relay.
type ZeromqCommitListener struct {
	sub     zmq4.Socket
	feeds   []string
	handler func(domain.CommitEvent)
}

func NewZeromqCommitListener(feeds []string, handler func(domain.CommitEvent)) *ZeromqCommitListener {
	reconnectOpt := zmq4.WithAutomaticReconnect(true)
	retryOpt := zmq4.WithDialerRetry(time.Second * 2)
	sub := zmq4.NewSub(context.Background(), reconnectOpt, retryOpt)
	sub.SetOption(zmq4.OptionSubscribe, CommitTopic)
	return &ZeromqCommitListener{
		sub:     sub,
		feeds:   feeds,
		handler: handler,
	}
}

func (z *ZeromqCommitListener) Listen() {
	for _, feed := range z.feeds {
		if err := z.sub.Dial(feed); err != nil {
			log.Println("Error dialing commit feed", feed, ":", err)
			return
		}
	}

	log.Println("ZeromqCommitListener - Started.")
	msgCh := make(chan zmq4.Msg, 2000)

	go func() {
		for {
			msg, err := z.sub.Recv()
			if err != nil {
				log.Println("Error receiving message:", err)
				if errors.Is(err, zmq4.ErrClosedConn) {
					log.Println("Socket closed, exiting listener")
					return
				}
				continue
			}
			msgCh <- msg
		}
	}()

	for msg := range msgCh {
		if len(msg.Frames) < 2 {
			continue
		}
		m, err := unmarshalCommitEventMessage(msg.Frames[1])
		if err != nil {
			log.Println(err)
			continue
		}
		z.handler(m.ToCommitEvent())
	}
}

func (z *ZeromqCommitListener) Close() error {
	return z.sub.Close()
}

func unmarshalCommitEventMessage(data []byte) (message.CommitEventMessage, error) {
	var eventMsg message.CommitEventMessage
	if err := json.Unmarshal(data, &eventMsg); err != nil {
		return message.CommitEventMessage{}, fmt.Errorf("error unmarshalling commit event: %w", err)
	}
	return eventMsg, nil
}
