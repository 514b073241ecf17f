// Package serialtest provides an in-memory serial peer that speaks framed
// PakBus, for driving the engine and collector without hardware.
package serialtest

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

// Responder reacts to one packet written by the code under test.
type Responder func(p *Peer, msg catalog.Message)

type chunk struct {
	at   time.Time
	data []byte
}

// Peer is an io.ReadWriteCloser. Read returns (0, nil) after ReadTimeout
// when nothing is due, like a serial port with a read timeout.
type Peer struct {
	ReadTimeout time.Duration

	mu       sync.Mutex
	queue    []chunk
	received []catalog.Message
	respond  Responder
	closed   bool
}

func NewPeer(respond Responder) *Peer {
	return &Peer{ReadTimeout: 2 * time.Millisecond, respond: respond}
}

func (p *Peer) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(p.queue) > 0 && !time.Now().Before(p.queue[0].at) {
		head := &p.queue[0]
		n := copy(b, head.data)
		head.data = head.data[n:]
		if len(head.data) == 0 {
			p.queue = p.queue[1:]
		}
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()
	time.Sleep(p.ReadTimeout)
	return 0, nil
}

// Write decodes every frame in b, records it, and hands it to the
// responder.
func (p *Peer) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	p.mu.Unlock()

	r := frame.NewReader(bytes.NewReader(b), frame.DefaultLimits())
	for {
		payload, err := r.ReadFrame()
		if err != nil {
			break
		}
		msg, err := catalog.Decode(payload)
		if err != nil {
			continue
		}
		p.mu.Lock()
		p.received = append(p.received, msg)
		respond := p.respond
		p.mu.Unlock()
		if respond != nil {
			respond(p, msg)
		}
	}
	return len(b), nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Send queues pkt for immediate delivery.
func (p *Peer) Send(pkt catalog.Packet) {
	p.SendRaw(frame.Encode(pkt.Bytes()), 0)
}

// SendAfter queues pkt to become readable after d.
func (p *Peer) SendAfter(d time.Duration, pkt catalog.Packet) {
	p.SendRaw(frame.Encode(pkt.Bytes()), d)
}

// SendRaw queues arbitrary bytes, such as line noise or a corrupted frame.
// Delivery keeps queue order even when an earlier entry is not yet due.
func (p *Peer) SendRaw(b []byte, after time.Duration) {
	buf := make([]byte, len(b))
	copy(buf, b)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, chunk{at: time.Now().Add(after), data: buf})
}

// Received returns every packet written so far.
func (p *Peer) Received() []catalog.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]catalog.Message, len(p.received))
	copy(out, p.received)
	return out
}

// ReceivedTypes returns the message types written so far.
func (p *Peer) ReceivedTypes() []uint8 {
	msgs := p.Received()
	out := make([]uint8, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}
