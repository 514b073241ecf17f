package session

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/protocol/frame"
	"github.com/danmuck/dataplex/internal/testutil/serialtest"
	"github.com/danmuck/dataplex/internal/testutil/testlog"
)

const (
	loggerNode = 0x001
	hostNode   = 0x802
)

var hostAddr = catalog.Addr{Dst: loggerNode, Src: hostNode}

type recordingObserver struct {
	mu       sync.Mutex
	drops    map[string]int
	hellos   int
	extended time.Duration
	done     []State
}

// eofPort accepts writes and reports a closed stream on every read.
type eofPort struct{}

func (eofPort) Read([]byte) (int, error) { return 0, io.EOF }
func (eofPort) Write(b []byte) (int, error) { return len(b), nil }

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{drops: make(map[string]int)}
}

func (o *recordingObserver) FrameDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops[reason]++
}

func (o *recordingObserver) HelloAnswered() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hellos++
}

func (o *recordingObserver) WaitExtended(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extended += d
}

func (o *recordingObserver) TransactionDone(_ uint8, state State, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done = append(o.done, state)
}

func getValues(tran uint8) (catalog.Packet, error) {
	return catalog.GetValuesCommand(hostAddr, tran, catalog.GetValuesRequest{
		Table: "Public", Type: protocol.TypeIEEE4B, Field: "AirTC", Swath: 1,
	})
}

func testConfig(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.ResponseTimeout = timeout
	return cfg
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 2.0, MaxDelay: 4 * time.Second, Jitter: true}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 32; i++ {
		got := NextBackoffDelay(cfg, 3, rng)
		if got < 2*time.Second || got > 6*time.Second {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestSleepBackoffHonoursContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := BackoffConfig{InitialDelay: time.Hour}
	if err := SleepBackoff(ctx, cfg, 1, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTransactReturnsMatchingResponse(t *testing.T) {
	testlog.Start(t)
	station := serialtest.NewStation(loggerNode)
	station.SetValue("Public", "AirTC", protocol.IEEE4(21.5))
	peer := serialtest.NewPeer(station.Respond)
	e := NewEngine(peer, hostAddr, testConfig(500*time.Millisecond))

	msg, err := e.Transact(context.Background(), getValues)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	resp, ok := msg.Body.(catalog.GetValuesResponse)
	if !ok || resp.RespCode != 0 {
		t.Fatalf("unexpected body: %#v", msg.Body)
	}
	vals, _, err := protocol.Decode([]protocol.FieldType{protocol.TypeIEEE4B}, resp.Values, 0)
	if err != nil || vals[0].Float != 21.5 {
		t.Fatalf("values=%+v err=%v", vals, err)
	}
	if last := e.Last(); last.State != StateMatched || last.TranNbr != 1 {
		t.Fatalf("unexpected transaction record: %+v", last)
	}
}

func TestWaitDiscardsNoiseAndHonoursPleaseWait(t *testing.T) {
	testlog.Start(t)
	reply := hostAddr.Reply()
	peer := serialtest.NewPeer(func(p *serialtest.Peer, msg catalog.Message) {
		if msg.Type != catalog.MsgGetValues {
			return
		}
		tran := msg.TranNbr
		// unrelated transaction
		p.Send(serialtest.Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, tran+1, protocol.Byte(0)))
		// addressed from a different node
		p.Send(serialtest.Response(catalog.Addr{Dst: hostNode, Src: 0x055}, frame.ProtoBMP5, catalog.MsgGetValuesResponse, tran, protocol.Byte(0)))
		// corrupted signature
		bad := frame.Encode(serialtest.Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, tran, protocol.Byte(0)).Bytes())
		bad[3] ^= 0x01
		p.SendRaw(bad, 0)
		p.SendRaw([]byte{0x00, 0x42}, 0)
		pw, _ := catalog.PleaseWaitMessage(reply, tran, catalog.PleaseWait{CmdMsgType: catalog.MsgGetValues, WaitSec: 1})
		p.Send(pw)
		p.SendAfter(150*time.Millisecond,
			serialtest.Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, tran, protocol.Byte(0), protocol.IEEE4(3)))
	})
	e := NewEngine(peer, hostAddr, testConfig(60*time.Millisecond))
	obs := newRecordingObserver()
	e.SetObserver(obs)

	msg, err := e.Transact(context.Background(), getValues)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	resp, ok := msg.Body.(catalog.GetValuesResponse)
	if !ok || len(resp.Values) != 4 {
		t.Fatalf("expected the delayed matching response, got %#v", msg.Body)
	}
	last := e.Last()
	if last.Extensions != 1 || last.State != StateMatched {
		t.Fatalf("unexpected transaction record: %+v", last)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.drops[DropUnmatched] != 1 || obs.drops[DropForeign] != 1 || obs.drops[DropChecksum] != 1 {
		t.Fatalf("unexpected drops: %+v", obs.drops)
	}
	if obs.extended != time.Second {
		t.Fatalf("extended got=%v", obs.extended)
	}
	if len(obs.done) != 1 || obs.done[0] != StateMatched {
		t.Fatalf("done states got=%v", obs.done)
	}
}

func TestTruncatedPleaseWaitIsDroppedNotMatched(t *testing.T) {
	testlog.Start(t)
	reply := hostAddr.Reply()
	peer := serialtest.NewPeer(func(p *serialtest.Peer, msg catalog.Message) {
		if msg.Type != catalog.MsgGetValues {
			return
		}
		// wait seconds missing
		p.Send(serialtest.Response(reply, frame.ProtoBMP5, catalog.MsgPleaseWait, msg.TranNbr, protocol.Byte(catalog.MsgGetValues)))
		p.SendAfter(20*time.Millisecond,
			serialtest.Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, msg.TranNbr, protocol.Byte(0), protocol.IEEE4(7)))
	})
	e := NewEngine(peer, hostAddr, testConfig(time.Second))
	obs := newRecordingObserver()
	e.SetObserver(obs)

	msg, err := e.Transact(context.Background(), getValues)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if msg.Type != catalog.MsgGetValuesResponse {
		t.Fatalf("truncated please wait must not match, got type=%#04x", msg.Type)
	}
	if last := e.Last(); last.Extensions != 0 {
		t.Fatalf("unexpected extensions: %+v", last)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.drops[DropMalformed] != 1 {
		t.Fatalf("unexpected drops: %+v", obs.drops)
	}
}

func TestUnsolicitedHelloIsAnsweredWithoutResolving(t *testing.T) {
	testlog.Start(t)
	reply := hostAddr.Reply()
	peer := serialtest.NewPeer(func(p *serialtest.Peer, msg catalog.Message) {
		if msg.Type != catalog.MsgGetValues {
			return
		}
		hello, _ := catalog.HelloCommand(reply, msg.TranNbr, catalog.DefaultHello())
		p.Send(hello)
		p.SendAfter(20*time.Millisecond,
			serialtest.Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, msg.TranNbr, protocol.Byte(0)))
	})
	e := NewEngine(peer, hostAddr, testConfig(time.Second))
	obs := newRecordingObserver()
	e.SetObserver(obs)

	msg, err := e.Transact(context.Background(), getValues)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if msg.Type != catalog.MsgGetValuesResponse {
		t.Fatalf("hello must not resolve the wait, got type=%#x", msg.Type)
	}
	var answered bool
	for _, m := range peer.Received() {
		if m.Header.HiProtoCode == frame.ProtoPakCtrl && m.Type == catalog.MsgHelloResponse {
			answered = m.Header.DstNodeID == loggerNode && m.TranNbr == msg.TranNbr
		}
	}
	if !answered || obs.hellos != 1 {
		t.Fatalf("expected hello response, received=%v hellos=%d", peer.ReceivedTypes(), obs.hellos)
	}
}

func TestTimeoutKeepsTranNbrSequential(t *testing.T) {
	testlog.Start(t)
	station := serialtest.NewStation(loggerNode)
	station.SetValue("Public", "AirTC", protocol.IEEE4(1))
	station.SetSilent(true)
	peer := serialtest.NewPeer(station.Respond)
	e := NewEngine(peer, hostAddr, testConfig(30*time.Millisecond))

	_, err := e.Transact(context.Background(), getValues)
	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("expected ErrResponseTimeout, got %v", err)
	}
	var te *ResponseTimeoutError
	if !errors.As(err, &te) || te.TranNbr != 1 || te.MsgType != catalog.MsgGetValues {
		t.Fatalf("unexpected timeout detail: %+v", te)
	}
	if e.Last().State != StateTimedOut {
		t.Fatalf("expected timed out state, got %v", e.Last().State)
	}

	station.SetSilent(false)
	if _, err := e.Transact(context.Background(), getValues); err != nil {
		t.Fatalf("second transact: %v", err)
	}
	got := peer.Received()
	if len(got) != 2 || got[0].TranNbr != 1 || got[1].TranNbr != 2 {
		t.Fatalf("unexpected tran sequence: %+v", got)
	}
}

func TestTranNbrWrapsModulo256(t *testing.T) {
	testlog.Start(t)
	e := NewEngine(serialtest.NewPeer(nil), hostAddr, DefaultConfig())
	e.tran = 0xFE
	if got := e.NextTranNbr(); got != 0xFF {
		t.Fatalf("got=%d", got)
	}
	if got := e.NextTranNbr(); got != 0x00 {
		t.Fatalf("expected wrap to 0, got=%d", got)
	}
}

func TestTransactStopsOnCancelledContext(t *testing.T) {
	testlog.Start(t)
	e := NewEngine(serialtest.NewPeer(nil), hostAddr, testConfig(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Transact(ctx, getValues); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if e.Last().State != StateFailed {
		t.Fatalf("expected failed state, got %v", e.Last().State)
	}
}

func TestTransactSurfacesTransportErrors(t *testing.T) {
	testlog.Start(t)
	peer := serialtest.NewPeer(nil)
	_ = peer.Close()
	e := NewEngine(peer, hostAddr, testConfig(time.Second))
	_, err := e.Transact(context.Background(), getValues)
	if !errors.Is(err, ErrTransport) || errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestTransactTreatsClosedStreamAsTransportError(t *testing.T) {
	testlog.Start(t)
	e := NewEngine(eofPort{}, hostAddr, testConfig(time.Second))
	_, err := e.Transact(context.Background(), getValues)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, io.EOF) {
		t.Fatalf("expected transport error wrapping io.EOF, got %v", err)
	}
	if e.Last().State != StateFailed {
		t.Fatalf("expected failed state, got %v", e.Last().State)
	}
}
