package catalog

import (
	"fmt"
	"time"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

func bmp5Header(a Addr) frame.LinkHeader {
	return frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoBMP5)
}

// ClockRequest reads the logger clock and optionally adjusts it.
type ClockRequest struct {
	SecurityCode uint16
	Adjustment   time.Duration
}

func ClockCommand(a Addr, tran uint8, req ClockRequest) (Packet, error) {
	return build(bmp5Header(a),
		protocol.Byte(MsgClock),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
		protocol.Time(protocol.NSecFromDuration(req.Adjustment)),
	)
}

// ClockResponse carries the logger time before any adjustment.
type ClockResponse struct {
	RespCode uint8
	Time     protocol.NSec
}

func decodeClock(c *protocol.Cursor) (any, error) {
	resp := ClockResponse{RespCode: c.Byte(), Time: c.NSec()}
	return resp, c.Err()
}

// GetValuesRequest reads Swath consecutive values of one field.
type GetValuesRequest struct {
	SecurityCode uint16
	Table        string
	Type         protocol.FieldType
	Field        string
	Swath        uint16
}

func GetValuesCommand(a Addr, tran uint8, req GetValuesRequest) (Packet, error) {
	if !req.Type.Valid() {
		return Packet{}, fmt.Errorf("%w: %d", protocol.ErrUnknownType, uint8(req.Type))
	}
	swath := req.Swath
	if swath == 0 {
		swath = 1
	}
	return build(bmp5Header(a),
		protocol.Byte(MsgGetValues),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
		protocol.ASCIIZ(req.Table),
		protocol.Byte(uint8(req.Type)),
		protocol.ASCIIZ(req.Field),
		protocol.UInt2(swath),
	)
}

// GetValuesResponse leaves Values encoded; only the caller knows the type
// and swath it asked for.
type GetValuesResponse struct {
	RespCode uint8
	Values   []byte
}

func decodeGetValues(c *protocol.Cursor) (any, error) {
	resp := GetValuesResponse{RespCode: c.Byte()}
	resp.Values = c.Rest()
	return resp, c.Err()
}

// CollectMode selects which records a collect-data command returns.
type CollectMode uint8

const (
	CollectAll           CollectMode = 0x03
	CollectFromRecord    CollectMode = 0x04
	CollectMostRecent    CollectMode = 0x05
	CollectRecordRange   CollectMode = 0x06
	CollectTimeRange     CollectMode = 0x07
	CollectPartialRecord CollectMode = 0x08
)

// CollectRequest names one table and the records wanted from it. P1/P2
// are record numbers or counts; T1/T2 bound a time range.
type CollectRequest struct {
	SecurityCode uint16
	Mode         CollectMode
	TableNbr     uint16
	TableSig     uint16
	P1           uint32
	P2           uint32
	T1           protocol.NSec
	T2           protocol.NSec
	Fields       []uint16
}

func CollectDataCommand(a Addr, tran uint8, req CollectRequest) (Packet, error) {
	mode := req.Mode
	if mode == 0 {
		mode = CollectMostRecent
	}
	values := []protocol.Value{
		protocol.Byte(MsgCollectData),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
		protocol.Byte(uint8(mode)),
		protocol.UInt2(req.TableNbr),
		protocol.UInt2(req.TableSig),
	}
	switch mode {
	case CollectAll:
	case CollectFromRecord, CollectMostRecent:
		values = append(values, protocol.UInt4(req.P1))
	case CollectRecordRange, CollectPartialRecord:
		values = append(values, protocol.UInt4(req.P1), protocol.UInt4(req.P2))
	case CollectTimeRange:
		values = append(values, protocol.Time(req.T1), protocol.Time(req.T2))
	default:
		return Packet{}, fmt.Errorf("catalog: unsupported collect mode %#04x", uint8(mode))
	}
	for _, f := range req.Fields {
		if f == 0 {
			return Packet{}, fmt.Errorf("catalog: field number 0 is reserved")
		}
		values = append(values, protocol.UInt2(f))
	}
	values = append(values, protocol.UInt2(0))
	return build(bmp5Header(a), values...)
}

// CollectDataResponse leaves record data encoded; decoding needs the
// table definitions (see package tabledef).
type CollectDataResponse struct {
	RespCode uint8
	RecData  []byte
}

func decodeCollectData(c *protocol.Cursor) (any, error) {
	resp := CollectDataResponse{RespCode: c.Byte()}
	resp.RecData = c.Rest()
	return resp, c.Err()
}

func ProgStatsCommand(a Addr, tran uint8, securityCode uint16) (Packet, error) {
	return build(bmp5Header(a),
		protocol.Byte(MsgGetProgStats),
		protocol.Byte(tran),
		protocol.UInt2(securityCode),
	)
}

// ProgStatsResponse describes the running program. Only RespCode is set
// when the logger refuses the request.
type ProgStatsResponse struct {
	RespCode      uint8
	OSVersion     string
	OSSig         uint16
	SerialNbr     string
	PowerUpProg   string
	CompileState  uint8
	ProgName      string
	ProgSig       uint16
	CompileTime   protocol.NSec
	CompileResult string
}

func decodeProgStats(c *protocol.Cursor) (any, error) {
	resp := ProgStatsResponse{RespCode: c.Byte()}
	if resp.RespCode != 0 {
		return resp, c.Err()
	}
	resp.OSVersion = c.ASCIIZ()
	resp.OSSig = c.UInt2()
	resp.SerialNbr = c.ASCIIZ()
	resp.PowerUpProg = c.ASCIIZ()
	resp.CompileState = c.Byte()
	resp.ProgName = c.ASCIIZ()
	resp.ProgSig = c.UInt2()
	resp.CompileTime = c.NSec()
	resp.CompileResult = c.ASCIIZ()
	return resp, c.Err()
}

// FileDownloadRequest writes one chunk of a file to the logger.
type FileDownloadRequest struct {
	SecurityCode uint16
	Name         string
	Attribute    uint8
	Close        bool
	Offset       uint32
	Data         []byte
}

func FileDownloadCommand(a Addr, tran uint8, req FileDownloadRequest) (Packet, error) {
	p, err := build(bmp5Header(a),
		protocol.Byte(MsgFileDownload),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
		protocol.ASCIIZ(req.Name),
		protocol.Byte(req.Attribute),
		protocol.Bool(req.Close),
		protocol.UInt4(req.Offset),
	)
	if err != nil {
		return Packet{}, err
	}
	p.Body = append(p.Body, req.Data...)
	return p, nil
}

type FileDownloadResponse struct {
	RespCode   uint8
	FileOffset uint32
}

func decodeFileDownload(c *protocol.Cursor) (any, error) {
	resp := FileDownloadResponse{RespCode: c.Byte(), FileOffset: c.UInt4()}
	return resp, c.Err()
}

// FileUploadRequest reads Swath bytes of a file starting at Offset.
type FileUploadRequest struct {
	SecurityCode uint16
	Name         string
	Close        bool
	Offset       uint32
	Swath        uint16
}

// DefaultSwath is the upload chunk size used when a request leaves it 0.
const DefaultSwath uint16 = 0x200

func FileUploadCommand(a Addr, tran uint8, req FileUploadRequest) (Packet, error) {
	swath := req.Swath
	if swath == 0 {
		swath = DefaultSwath
	}
	return build(bmp5Header(a),
		protocol.Byte(MsgFileUpload),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
		protocol.ASCIIZ(req.Name),
		protocol.Bool(req.Close),
		protocol.UInt4(req.Offset),
		protocol.UInt2(swath),
	)
}

type FileUploadResponse struct {
	RespCode   uint8
	FileOffset uint32
	FileData   []byte
}

func decodeFileUpload(c *protocol.Cursor) (any, error) {
	resp := FileUploadResponse{RespCode: c.Byte(), FileOffset: c.UInt4()}
	resp.FileData = c.Rest()
	return resp, c.Err()
}

// FileCmd is a file-control command code.
type FileCmd uint8

const (
	FileCompileRun     FileCmd = 0x01
	FileSetRunOnPower  FileCmd = 0x02
	FileMakeHidden     FileCmd = 0x03
	FileDelete         FileCmd = 0x04
	FileFormatDevice   FileCmd = 0x05
	FileCompileRunKeep FileCmd = 0x06
	FileStopProgram    FileCmd = 0x07
	FileStopDelete     FileCmd = 0x08
	FileMakeOS         FileCmd = 0x09
	FileCompileRunOnly FileCmd = 0x0a
	FilePause          FileCmd = 0x0b
	FileResume         FileCmd = 0x0c
	FileStopDeleteKeep FileCmd = 0x0d
	FileRename         FileCmd = 0x0e
)

type FileControlRequest struct {
	SecurityCode uint16
	Name         string
	Cmd          FileCmd
	// Target is the new name for FileRename and empty otherwise.
	Target string
}

func FileControlCommand(a Addr, tran uint8, req FileControlRequest) (Packet, error) {
	return build(bmp5Header(a),
		protocol.Byte(MsgFileControl),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
		protocol.ASCIIZ(req.Name),
		protocol.Byte(uint8(req.Cmd)),
		protocol.ASCIIZ(req.Target),
	)
}

type FileControlResponse struct {
	RespCode uint8
	HoldOff  uint16
}

func decodeFileControl(c *protocol.Cursor) (any, error) {
	resp := FileControlResponse{RespCode: c.Byte(), HoldOff: c.UInt2()}
	return resp, c.Err()
}

// PleaseWait asks the caller to extend its deadline for CmdMsgType.
type PleaseWait struct {
	CmdMsgType uint8
	WaitSec    uint16
}

// Wait is the requested extension.
func (p PleaseWait) Wait() time.Duration {
	return time.Duration(p.WaitSec) * time.Second
}

// PleaseWaitMessage builds the logger-side please-wait notice.
func PleaseWaitMessage(a Addr, tran uint8, pw PleaseWait) (Packet, error) {
	return build(bmp5Header(a),
		protocol.Byte(MsgPleaseWait),
		protocol.Byte(tran),
		protocol.Byte(pw.CmdMsgType),
		protocol.UInt2(pw.WaitSec),
	)
}

func decodePleaseWait(c *protocol.Cursor) (any, error) {
	pw := PleaseWait{CmdMsgType: c.Byte(), WaitSec: c.UInt2()}
	return pw, c.Err()
}
