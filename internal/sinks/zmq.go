package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sinks: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeReading serialises r for the wire in the given encoding (json or
// cbor).
func EncodeReading(r Reading, encoding string) ([]byte, error) {
	switch encoding {
	case "", "json":
		return json.Marshal(r)
	case "cbor":
		return cborEncMode.Marshal(r)
	default:
		return nil, fmt.Errorf("sinks: unknown encoding %q", encoding)
	}
}

// DecodeReading is the inverse of EncodeReading.
func DecodeReading(data []byte, encoding string) (Reading, error) {
	var r Reading
	var err error
	switch encoding {
	case "", "json":
		err = json.Unmarshal(data, &r)
	case "cbor":
		err = cbor.Unmarshal(data, &r)
	default:
		err = fmt.Errorf("sinks: unknown encoding %q", encoding)
	}
	return r, err
}

// ZMQSink publishes readings on a PUB socket as two-frame messages:
// topic, payload.
type ZMQSink struct {
	mu       sync.Mutex
	pub      zmq4.Socket
	topic    string
	encoding string
	cancel   context.CancelFunc
}

func NewZMQSink(ctx context.Context, endpoint, topic, encoding string) (*ZMQSink, error) {
	ctx, cancel := context.WithCancel(ctx)
	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(endpoint); err != nil {
		cancel()
		_ = pub.Close()
		return nil, fmt.Errorf("sinks: zmq listen %s: %w", endpoint, err)
	}
	log.Info().Str("endpoint", endpoint).Str("topic", topic).Str("encoding", encoding).Msg("sinks.ZMQSink publishing")
	return &ZMQSink{pub: pub, topic: topic, encoding: encoding, cancel: cancel}, nil
}

func (s *ZMQSink) Name() string { return "zmq" }

// Addr is the bound address, useful when listening on port 0.
func (s *ZMQSink) Addr() string {
	if a := s.pub.Addr(); a != nil {
		return a.String()
	}
	return ""
}

func (s *ZMQSink) Write(_ context.Context, r Reading) error {
	payload, err := EncodeReading(r, s.encoding)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub == nil {
		return fmt.Errorf("sinks: zmq sink closed")
	}
	return s.pub.Send(zmq4.NewMsgFrom([]byte(s.topic), payload))
}

func (s *ZMQSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub == nil {
		return nil
	}
	err := s.pub.Close()
	s.pub = nil
	s.cancel()
	return err
}
