package publisher

import (
	"context"
	"log"
	"time"

	"github.com/go-zeromq/zmq4"
	json "github.com/json-iterator/go"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/messaging/zeromq/message"
)

const CommitTopic = "commit"

// ZeroMQCommitPublisher broadcasts durable commits on a PUB socket.
// Events are handed off through a buffered channel so a slow or absent
// subscriber can never stall a commit; when the buffer fills, events
// are dropped.
type ZeroMQCommitPublisher struct {
	pub    zmq4.Socket
	bind   string
	events chan domain.CommitEvent
}

func NewZeroMQCommitPublisher(bind string) *ZeroMQCommitPublisher {
	reconnectOpt := zmq4.WithAutomaticReconnect(true)
	retryOpt := zmq4.WithDialerRetry(time.Second * 5)
	socket := zmq4.NewPub(context.Background(), reconnectOpt, retryOpt)
	return &ZeroMQCommitPublisher{
		pub:    socket,
		bind:   bind,
		events: make(chan domain.CommitEvent, 2000),
	}
}

func (p *ZeroMQCommitPublisher) Initialize() error {
	if err := p.pub.Listen(p.bind); err != nil {
		log.Println("Error starting commit publisher", err)
		return err
	}
	go p.sendLoop()
	log.Println("Commit publisher listening on", p.bind)
	return nil
}

// NotifyCommit implements domain.CommitNotifier.
func (p *ZeroMQCommitPublisher) NotifyCommit(event domain.CommitEvent) {
	select {
	case p.events <- event:
	default:
		log.Println("Commit feed buffer full, dropping event for", event.Database)
	}
}

func (p *ZeroMQCommitPublisher) sendLoop() {
	for event := range p.events {
		payload, err := json.Marshal(message.CommitEventMessageFrom(event))
		if err != nil {
			log.Println("Error marshalling commit event:", err)
			continue
		}
		msg := zmq4.NewMsgFrom(
			[][]byte{
				[]byte(CommitTopic),
				payload,
			}...,
		)
		if err := p.pub.Send(msg); err != nil {
			log.Println("Error sending commit event:", err)
		}
	}
}

func (p *ZeroMQCommitPublisher) Close() error {
	close(p.events)
	return p.pub.Close()
}
