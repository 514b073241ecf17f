package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderLen = 8

var (
	ErrShortHeader   = errors.New("frame: short link header")
	ErrFieldOverflow = errors.New("frame: link header field overflow")
)

// LinkState is the 4-bit serial link state carried in every header.
type LinkState uint8

const (
	LinkOffline  LinkState = 0x8
	LinkRing     LinkState = 0x9
	LinkReady    LinkState = 0xA
	LinkFinished LinkState = 0xB
	LinkPause    LinkState = 0xC
)

// Higher-level protocol codes.
const (
	ProtoPakCtrl uint8 = 0x0
	ProtoBMP5    uint8 = 0x1
)

// Expect-more codes.
const (
	ExpectLast    uint8 = 0
	ExpectMore    uint8 = 1
	ExpectNeutral uint8 = 2
	ExpectReverse uint8 = 3
)

const (
	PriorityLow       uint8 = 0
	PriorityNormal    uint8 = 1
	PriorityHigh      uint8 = 2
	PriorityExtraHigh uint8 = 3
)

// MaxAddress is the largest 12-bit node or physical address.
const MaxAddress uint16 = 0xFFF

// LinkHeader is the 8-byte PakBus link header.
type LinkHeader struct {
	LinkState   LinkState
	DstPhyAddr  uint16
	ExpMoreCode uint8
	Priority    uint8
	SrcPhyAddr  uint16
	HiProtoCode uint8
	DstNodeID   uint16
	HopCount    uint8
	SrcNodeID   uint16
}

// NewLinkHeader returns a header with physical addresses equal to the node
// addresses and the usual link defaults.
func NewLinkHeader(dst, src uint16, proto uint8) LinkHeader {
	return LinkHeader{
		LinkState:   LinkReady,
		DstPhyAddr:  dst,
		ExpMoreCode: ExpectNeutral,
		Priority:    PriorityNormal,
		SrcPhyAddr:  src,
		HiProtoCode: proto,
		DstNodeID:   dst,
		HopCount:    0,
		SrcNodeID:   src,
	}
}

// Validate checks every sub-field against its bit width.
func (h LinkHeader) Validate() error {
	checks := []struct {
		name string
		v    uint16
		max  uint16
	}{
		{"link_state", uint16(h.LinkState), 0xF},
		{"dst_phy_addr", h.DstPhyAddr, MaxAddress},
		{"exp_more", uint16(h.ExpMoreCode), 0x3},
		{"priority", uint16(h.Priority), 0x3},
		{"src_phy_addr", h.SrcPhyAddr, MaxAddress},
		{"hi_proto", uint16(h.HiProtoCode), 0xF},
		{"dst_node_id", h.DstNodeID, MaxAddress},
		{"hop_count", uint16(h.HopCount), 0xF},
		{"src_node_id", h.SrcNodeID, MaxAddress},
	}
	for _, c := range checks {
		if c.v > c.max {
			return fmt.Errorf("%w: %s=%#x max=%#x", ErrFieldOverflow, c.name, c.v, c.max)
		}
	}
	return nil
}

// AppendHeader packs h onto dst. Out-of-range sub-fields are masked.
func AppendHeader(dst []byte, h LinkHeader) []byte {
	var buf [HeaderLen]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(h.LinkState&0xF)<<12|h.DstPhyAddr&MaxAddress)
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.ExpMoreCode&0x3)<<14|uint16(h.Priority&0x3)<<12|h.SrcPhyAddr&MaxAddress)
	binary.BigEndian.PutUint16(buf[4:6], uint16(h.HiProtoCode&0xF)<<12|h.DstNodeID&MaxAddress)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.HopCount&0xF)<<12|h.SrcNodeID&MaxAddress)
	return append(dst, buf[:]...)
}

func EncodeHeader(h LinkHeader) []byte {
	return AppendHeader(make([]byte, 0, HeaderLen), h)
}

func DecodeHeader(b []byte) (LinkHeader, error) {
	if len(b) < HeaderLen {
		return LinkHeader{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(b))
	}
	w0 := binary.BigEndian.Uint16(b[0:2])
	w1 := binary.BigEndian.Uint16(b[2:4])
	w2 := binary.BigEndian.Uint16(b[4:6])
	w3 := binary.BigEndian.Uint16(b[6:8])
	return LinkHeader{
		LinkState:   LinkState(w0 >> 12),
		DstPhyAddr:  w0 & MaxAddress,
		ExpMoreCode: uint8(w1 >> 14),
		Priority:    uint8(w1>>12) & 0x3,
		SrcPhyAddr:  w1 & MaxAddress,
		HiProtoCode: uint8(w2 >> 12),
		DstNodeID:   w2 & MaxAddress,
		HopCount:    uint8(w3 >> 12),
		SrcNodeID:   w3 & MaxAddress,
	}, nil
}
