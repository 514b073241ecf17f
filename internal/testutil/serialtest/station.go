package serialtest

import (
	"sync"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

// BMP5 response codes the station emits.
const (
	RespOK          uint8 = 0
	RespInvalidName uint8 = 16
	RespOutOfBounds uint8 = 18
	RespInvalidFile uint8 = 13
)

// Station is a scripted data logger. Its Respond method is a Responder.
type Station struct {
	Node uint16

	mu        sync.Mutex
	values    map[string][]protocol.Value
	files     map[string][]byte
	clock     protocol.NSec
	progStats catalog.ProgStatsResponse
	recData   []byte
	silent    bool
	byes      int
}

func NewStation(node uint16) *Station {
	return &Station{
		Node:   node,
		values: make(map[string][]protocol.Value),
		files:  make(map[string][]byte),
	}
}

// SetValue publishes vals under table.field.
func (s *Station) SetValue(table, field string, vals ...protocol.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[table+"."+field] = vals
}

func (s *Station) SetFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
}

// File returns a copy of a stored file.
func (s *Station) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return append([]byte(nil), data...), ok
}

func (s *Station) SetClock(t protocol.NSec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = t
}

func (s *Station) SetProgStats(ps catalog.ProgStatsResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progStats = ps
}

func (s *Station) SetCollectData(rec []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recData = rec
}

// SetSilent makes the station ignore every request.
func (s *Station) SetSilent(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = v
}

// Byes counts bye messages received.
func (s *Station) Byes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byes
}

func (s *Station) Respond(p *Peer, msg catalog.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silent || msg.Header.DstNodeID != s.Node || len(msg.Raw) < 2 {
		return
	}
	reply := catalog.Addr{Dst: msg.Header.SrcNodeID, Src: s.Node}
	c := protocol.NewCursor(msg.Raw[2:])

	switch msg.Key() {
	case catalog.Key{Proto: frame.ProtoPakCtrl, Type: catalog.MsgHello}:
		if pkt, err := catalog.HelloResponse(reply, msg.TranNbr, catalog.DefaultHello()); err == nil {
			p.Send(pkt)
		}
	case catalog.Key{Proto: frame.ProtoPakCtrl, Type: catalog.MsgBye}:
		s.byes++
	case catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgGetValues}:
		c.UInt2()
		table := c.ASCIIZ()
		ft := protocol.FieldType(c.Byte())
		field := c.ASCIIZ()
		swath := int(c.UInt2())
		vals, ok := s.values[table+"."+field]
		switch {
		case !ok:
			p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, msg.TranNbr, protocol.Byte(RespInvalidName)))
		case ft == protocol.TypeASCII:
			text := []byte(vals[0].String)
			text = append(text, make([]byte, max(swath-len(text), 0))...)
			p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, msg.TranNbr,
				protocol.Byte(RespOK), protocol.ASCII(string(text[:swath]))))
		case len(vals) < swath:
			p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, msg.TranNbr, protocol.Byte(RespOutOfBounds)))
		default:
			out := []protocol.Value{protocol.Byte(RespOK)}
			for _, v := range vals[:swath] {
				v.Type = ft
				out = append(out, v)
			}
			p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgGetValuesResponse, msg.TranNbr, out...))
		}
	case catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgClock}:
		p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgClockResponse, msg.TranNbr,
			protocol.Byte(RespOK), protocol.Time(s.clock)))
	case catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgGetProgStats}:
		ps := s.progStats
		p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgGetProgStatsResponse, msg.TranNbr,
			protocol.Byte(ps.RespCode), protocol.ASCIIZ(ps.OSVersion), protocol.UInt2(ps.OSSig),
			protocol.ASCIIZ(ps.SerialNbr), protocol.ASCIIZ(ps.PowerUpProg), protocol.Byte(ps.CompileState),
			protocol.ASCIIZ(ps.ProgName), protocol.UInt2(ps.ProgSig), protocol.Time(ps.CompileTime),
			protocol.ASCIIZ(ps.CompileResult)))
	case catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgCollectData}:
		p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgCollectDataResponse, msg.TranNbr,
			protocol.Byte(RespOK), protocol.ASCII(string(s.recData))))
	case catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgFileUpload}:
		c.UInt2()
		name := c.ASCIIZ()
		c.Byte()
		offset := int(c.UInt4())
		swath := int(c.UInt2())
		data, ok := s.files[name]
		if !ok {
			p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgFileUploadResponse, msg.TranNbr,
				protocol.Byte(RespInvalidFile), protocol.UInt4(uint32(offset))))
			return
		}
		if offset > len(data) {
			offset = len(data)
		}
		end := min(offset+swath, len(data))
		p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgFileUploadResponse, msg.TranNbr,
			protocol.Byte(RespOK), protocol.UInt4(uint32(offset)), protocol.ASCII(string(data[offset:end]))))
	case catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgFileDownload}:
		c.UInt2()
		name := c.ASCIIZ()
		c.Byte()
		c.Byte()
		offset := c.UInt4()
		chunk := c.Rest()
		data := s.files[name]
		if offset == 0 {
			data = nil
		}
		if c.Err() != nil || int(offset) != len(data) {
			p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgFileDownloadResponse, msg.TranNbr,
				protocol.Byte(RespOutOfBounds), protocol.UInt4(offset)))
			return
		}
		s.files[name] = append(data, chunk...)
		p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgFileDownloadResponse, msg.TranNbr,
			protocol.Byte(RespOK), protocol.UInt4(offset)))
	case catalog.Key{Proto: frame.ProtoBMP5, Type: catalog.MsgFileControl}:
		p.Send(Response(reply, frame.ProtoBMP5, catalog.MsgFileControlResponse, msg.TranNbr,
			protocol.Byte(RespOK), protocol.UInt2(0)))
	}
}

// Response builds a reply packet with the given body values after the
// message type and transaction number.
func Response(a catalog.Addr, proto, msgType, tran uint8, values ...protocol.Value) catalog.Packet {
	body, err := protocol.EncodeValues(append([]protocol.Value{protocol.Byte(msgType), protocol.Byte(tran)}, values...)...)
	if err != nil {
		panic(err)
	}
	return catalog.Packet{Header: frame.NewLinkHeader(a.Dst, a.Src, proto), Body: body}
}
