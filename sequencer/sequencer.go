package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-zeromq/zmq4"
)

const CommitTopic = "commit"

// Relay fans commit feeds from several engine processes into one PUB
// socket, so downstream consumers subscribe in a single place.
type Relay struct {
	pub     zmq4.Socket
	sub     zmq4.Socket
	events  chan zmq4.Msg
	pubPort int
	feeds   []string
}

func NewRelay(pubPort int, feeds []string) *Relay {
	pub := zmq4.NewPub(context.Background())
	sub := zmq4.NewSub(context.Background())
	sub.SetOption(zmq4.OptionSubscribe, CommitTopic)

	return &Relay{
		pub:     pub,
		sub:     sub,
		events:  make(chan zmq4.Msg, 30000),
		pubPort: pubPort,
		feeds:   feeds,
	}
}

func (r *Relay) Listen() {
	pubAddr := fmt.Sprintf("tcp://*:%d", r.pubPort)
	err := r.pub.Listen(pubAddr)
	if err != nil {
		log.Fatalf("Failed to start pub socket on %s: %v", pubAddr, err)
	}
	log.Printf("Pub socket listening on %s\n", pubAddr)

	for _, feed := range r.feeds {
		if err := r.sub.Dial(feed); err != nil {
			log.Fatalf("Failed to dial feed %s: %v", feed, err)
		}
		log.Printf("Subscribed to feed %s\n", feed)
	}

	// Goroutine to receive messages
	go func() {
		for {
			msg, err := r.sub.Recv()
			if err != nil {
				log.Println("Error receiving message:", err)
				if errors.Is(err, zmq4.ErrClosedConn) {
					log.Println("Socket closed, exiting listener")
					return
				}
				continue
			}
			r.events <- msg
		}
	}()

	for msg := range r.events {
		if err := r.pub.Send(msg); err != nil {
			log.Println("Error sending message:", err)
			return
		}
	}
}

func main() {
	pubPort := flag.Int("pub-port", 7000, "Port for PUB socket")
	feedList := flag.String("feeds", "", "Comma-separated engine commit feed endpoints")
	flag.Parse()

	if *pubPort <= 0 {
		log.Println("Port must be a positive integer")
		os.Exit(1)
	}
	if *feedList == "" {
		log.Println("At least one feed endpoint is required")
		os.Exit(1)
	}

	relay := NewRelay(*pubPort, strings.Split(*feedList, ","))
	relay.Listen()
}
