package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

// Drop reasons reported to the Observer.
const (
	DropFraming   = "framing"
	DropChecksum  = "checksum"
	DropMalformed = "malformed"
	DropForeign   = "foreign"
	DropUnmatched = "unmatched"
)

// Observer receives engine events. Implementations must not block.
type Observer interface {
	FrameDropped(reason string)
	HelloAnswered()
	WaitExtended(d time.Duration)
	TransactionDone(msgType uint8, state State, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) FrameDropped(string) {}
func (nopObserver) HelloAnswered() {}
func (nopObserver) WaitExtended(time.Duration) {}
func (nopObserver) TransactionDone(uint8, State, time.Duration) {}

// BuildFunc builds a request for an allocated transaction number.
type BuildFunc func(tran uint8) (catalog.Packet, error)

// Engine runs request/response transactions over one serial link. The
// port's Read must return (0, nil) when its read timeout elapses.
type Engine struct {
	port   io.ReadWriter
	reader *frame.Reader
	addr   catalog.Addr
	cfg    Config
	obs    Observer
	now    func() time.Time

	tran uint8
	last Transaction
}

func NewEngine(port io.ReadWriter, addr catalog.Addr, cfg Config) *Engine {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultConfig().ResponseTimeout
	}
	return &Engine{
		port:   port,
		reader: frame.NewReader(port, cfg.Limits),
		addr:   addr,
		cfg:    cfg,
		obs:    nopObserver{},
		now:    time.Now,
	}
}

// SetObserver installs o; nil restores the no-op observer.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	e.obs = o
}

// Addr returns the peer (Dst) and local (Src) node ids.
func (e *Engine) Addr() catalog.Addr {
	return e.addr
}

// NextTranNbr allocates the next transaction number modulo 256.
func (e *Engine) NextTranNbr() uint8 {
	e.tran++
	return e.tran
}

// Last returns the most recent transaction record.
func (e *Engine) Last() Transaction {
	return e.last
}

// Send frames and writes p without waiting for a reply.
func (e *Engine) Send(p catalog.Packet) error {
	if err := frame.WriteFrame(e.port, p.Bytes()); err != nil {
		return fmt.Errorf("%w: write msg_type=%#04x: %w", ErrTransport, p.MsgType(), err)
	}
	return nil
}

// Transact allocates a transaction number, sends the packet built for it
// and waits for the matching response.
func (e *Engine) Transact(ctx context.Context, build BuildFunc) (catalog.Message, error) {
	return e.TransactTimeout(ctx, e.cfg.ResponseTimeout, build)
}

// TransactTimeout is Transact with an explicit base timeout.
func (e *Engine) TransactTimeout(ctx context.Context, timeout time.Duration, build BuildFunc) (catalog.Message, error) {
	tran := e.NextTranNbr()
	pkt, err := build(tran)
	if err != nil {
		return catalog.Message{}, err
	}
	tx := Transaction{
		TranNbr:   tran,
		MsgType:   pkt.MsgType(),
		DstNodeID: pkt.Header.DstNodeID,
		SrcNodeID: pkt.Header.SrcNodeID,
		State:     StateInit,
	}
	if err := e.Send(pkt); err != nil {
		tx.State = StateFailed
		e.last = tx
		return catalog.Message{}, err
	}
	tx.State = StateSent
	tx.SentAt = e.now()
	tx.Deadline = tx.SentAt.Add(timeout)

	msg, err := e.wait(ctx, &tx)
	e.last = tx
	e.obs.TransactionDone(tx.MsgType, tx.State, e.now().Sub(tx.SentAt))
	return msg, err
}

func (e *Engine) wait(ctx context.Context, tx *Transaction) (catalog.Message, error) {
	tx.State = StateWaiting
	for {
		if err := ctx.Err(); err != nil {
			tx.State = StateFailed
			return catalog.Message{}, err
		}
		if !e.now().Before(tx.Deadline) {
			tx.State = StateTimedOut
			return catalog.Message{}, &ResponseTimeoutError{
				TranNbr: tx.TranNbr,
				MsgType: tx.MsgType,
				Waited:  e.now().Sub(tx.SentAt),
			}
		}

		payload, err := e.reader.ReadFrame()
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrTimeout):
			continue
		case errors.Is(err, frame.ErrFraming):
			e.drop(DropFraming, err)
			continue
		case errors.Is(err, frame.ErrChecksum):
			e.drop(DropChecksum, err)
			continue
		default:
			tx.State = StateFailed
			return catalog.Message{}, fmt.Errorf("%w: read: %w", ErrTransport, err)
		}

		msg, err := catalog.Decode(payload)
		if err != nil || len(msg.Raw) < 2 {
			e.drop(DropMalformed, err)
			continue
		}
		if msg.Header.DstNodeID != e.addr.Src || msg.Header.SrcNodeID != e.addr.Dst {
			e.drop(DropForeign, nil)
			continue
		}
		if msg.Header.HiProtoCode == frame.ProtoPakCtrl && msg.Type == catalog.MsgHello {
			e.answerHello(msg)
			continue
		}
		if msg.TranNbr != tx.TranNbr {
			e.drop(DropUnmatched, nil)
			continue
		}
		if msg.Key() == (catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgPleaseWait}) {
			pw, ok := msg.Body.(catalog.PleaseWait)
			if !ok {
				e.drop(DropMalformed, nil)
				continue
			}
			tx.Deadline = tx.Deadline.Add(pw.Wait())
			tx.Extensions++
			e.obs.WaitExtended(pw.Wait())
			log.Debug().
				Uint8("tran", tx.TranNbr).
				Uint16("wait_sec", pw.WaitSec).
				Msg("session.Engine.wait please-wait, deadline extended")
			continue
		}
		tx.State = StateMatched
		return msg, nil
	}
}

func (e *Engine) answerHello(msg catalog.Message) {
	to := catalog.Addr{Dst: msg.Header.SrcNodeID, Src: e.addr.Src}
	pkt, err := catalog.HelloResponse(to, msg.TranNbr, e.cfg.Hello)
	if err == nil {
		err = e.Send(pkt)
	}
	if err != nil {
		log.Warn().Err(err).Uint16("node", to.Dst).Msg("session.Engine hello response failed")
		return
	}
	e.obs.HelloAnswered()
	log.Debug().Uint16("node", to.Dst).Uint8("tran", msg.TranNbr).Msg("session.Engine answered hello")
}

func (e *Engine) drop(reason string, err error) {
	e.obs.FrameDropped(reason)
	ev := log.Trace().Str("reason", reason)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("session.Engine dropped packet")
}
