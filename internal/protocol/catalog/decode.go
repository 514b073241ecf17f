package catalog

import (
	"github.com/rs/zerolog/log"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

type decoder func(c *protocol.Cursor) (any, error)

var decoders = map[Key]decoder{
	{frame.ProtoPakCtrl, MsgHello}:               decodeHello,
	{frame.ProtoPakCtrl, MsgHelloResponse}:       decodeHello,
	{frame.ProtoPakCtrl, MsgGetSettingsResponse}: decodeGetSettings,
	{frame.ProtoPakCtrl, MsgSetSettingsResponse}: decodeSetSettings,
	{frame.ProtoPakCtrl, MsgDevControlResponse}:  decodeDevControl,

	{frame.ProtoBMP5, MsgCollectDataResponse}:  decodeCollectData,
	{frame.ProtoBMP5, MsgClockResponse}:        decodeClock,
	{frame.ProtoBMP5, MsgGetProgStatsResponse}: decodeProgStats,
	{frame.ProtoBMP5, MsgGetValuesResponse}:    decodeGetValues,
	{frame.ProtoBMP5, MsgFileDownloadResponse}: decodeFileDownload,
	{frame.ProtoBMP5, MsgFileUploadResponse}:   decodeFileUpload,
	{frame.ProtoBMP5, MsgFileControlResponse}:  decodeFileControl,
	{frame.ProtoBMP5, MsgPleaseWait}:           decodePleaseWait,
}

// Known reports whether k has a typed decoder.
func Known(k Key) bool {
	_, ok := decoders[k]
	return ok
}

// Decode splits an unsigned packet into header and message. Only a packet
// too short for a link header is an error.
func Decode(pkt []byte) (Message, error) {
	hdr, err := frame.DecodeHeader(pkt)
	if err != nil {
		return Message{}, err
	}
	raw := make([]byte, len(pkt)-frame.HeaderLen)
	copy(raw, pkt[frame.HeaderLen:])
	msg := Message{Header: hdr, Raw: raw}
	if len(raw) > 0 {
		msg.Type = raw[0]
	}
	if len(raw) > 1 {
		msg.TranNbr = raw[1]
	}
	if len(raw) < 2 {
		return msg, nil
	}

	dec, ok := decoders[msg.Key()]
	if !ok {
		log.Trace().
			Uint8("proto", hdr.HiProtoCode).
			Uint8("msg_type", msg.Type).
			Msg("catalog.Decode no decoder, keeping raw message")
		return msg, nil
	}
	body, err := dec(protocol.NewCursor(raw[2:]))
	if err != nil {
		log.Debug().
			Err(err).
			Uint8("proto", hdr.HiProtoCode).
			Uint8("msg_type", msg.Type).
			Uint8("tran", msg.TranNbr).
			Msg("catalog.Decode body did not parse, keeping raw message")
		return msg, nil
	}
	msg.Body = body
	return msg, nil
}
