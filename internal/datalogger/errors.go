package datalogger

import (
	"errors"
	"fmt"
)

var (
	ErrNoReply            = errors.New("datalogger: no reply")
	ErrClosed             = errors.New("datalogger: client closed")
	ErrBroken             = errors.New("datalogger: session broken, reopen required")
	ErrUnexpectedResponse = errors.New("datalogger: unexpected response")
)

// BMP5 response codes shared by most commands.
const (
	RespOK               uint8 = 0
	RespPermissionDenied uint8 = 1
	RespInvalidFileName  uint8 = 13
	RespInvalidName      uint8 = 16
	RespUnsupportedType  uint8 = 17
	RespOutOfBounds      uint8 = 18
	RespInvalidValue     uint8 = 19
)

var respCodeNames = map[uint8]string{
	RespPermissionDenied: "permission denied",
	RespInvalidFileName:  "invalid file name",
	RespInvalidName:      "invalid table or field name",
	RespUnsupportedType:  "unsupported type conversion",
	RespOutOfBounds:      "out of bounds",
	RespInvalidValue:     "invalid value",
}

// ResponseCodeError reports a non-zero response code from the logger.
type ResponseCodeError struct {
	MsgType uint8
	Code    uint8
}

func (e *ResponseCodeError) Error() string {
	if name, ok := respCodeNames[e.Code]; ok {
		return fmt.Sprintf("datalogger: msg_type=%#04x response code %d (%s)", e.MsgType, e.Code, name)
	}
	return fmt.Sprintf("datalogger: msg_type=%#04x response code %d", e.MsgType, e.Code)
}

func checkResp(msgType, code uint8) error {
	if code == RespOK {
		return nil
	}
	return &ResponseCodeError{MsgType: msgType, Code: code}
}
