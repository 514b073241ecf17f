package datalogger

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/protocol/tabledef"
)

// UploadFile reads a whole file from the logger, one swath per
// transaction, until a chunk comes back short.
func (c *Client) UploadFile(ctx context.Context, name string) ([]byte, error) {
	swath := catalog.DefaultSwath
	var out []byte
	for {
		offset := uint32(len(out))
		msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
			return catalog.FileUploadCommand(c.Addr(), tran, catalog.FileUploadRequest{
				SecurityCode: c.cfg.SecurityCode,
				Name:         name,
				Offset:       offset,
				Swath:        swath,
			})
		})
		if err != nil {
			return nil, err
		}
		resp, err := bodyOf[catalog.FileUploadResponse](msg)
		if err != nil {
			return nil, err
		}
		if err := checkResp(catalog.MsgFileUpload, resp.RespCode); err != nil {
			return nil, fmt.Errorf("file %q: %w", name, err)
		}
		if resp.FileOffset != offset {
			return nil, fmt.Errorf("%w: file %q offset %d, want %d", ErrUnexpectedResponse, name, resp.FileOffset, offset)
		}
		out = append(out, resp.FileData...)
		if len(resp.FileData) < int(swath) {
			return out, nil
		}
	}
}

// DownloadFile writes data to the logger as name, one swath per
// transaction. The last chunk carries the close flag; empty data still
// sends one closing chunk so the file is created.
func (c *Client) DownloadFile(ctx context.Context, name string, data []byte) error {
	chunk := int(catalog.DefaultSwath)
	offset := 0
	for {
		end := min(offset+chunk, len(data))
		last := end == len(data)
		req := catalog.FileDownloadRequest{
			SecurityCode: c.cfg.SecurityCode,
			Name:         name,
			Close:        last,
			Offset:       uint32(offset),
			Data:         data[offset:end],
		}
		msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
			return catalog.FileDownloadCommand(c.Addr(), tran, req)
		})
		if err != nil {
			return err
		}
		resp, err := bodyOf[catalog.FileDownloadResponse](msg)
		if err != nil {
			return err
		}
		if err := checkResp(catalog.MsgFileDownload, resp.RespCode); err != nil {
			return fmt.Errorf("file %q: %w", name, err)
		}
		if resp.FileOffset != req.Offset {
			return fmt.Errorf("%w: file %q offset %d, want %d", ErrUnexpectedResponse, name, resp.FileOffset, req.Offset)
		}
		if last {
			return nil
		}
		offset = end
	}
}

// FileControl runs cmd against a logger file. The returned hold-off is how
// long the logger asks the caller to wait before the next command.
func (c *Client) FileControl(ctx context.Context, name string, cmd catalog.FileCmd, target string) (time.Duration, error) {
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.FileControlCommand(c.Addr(), tran, catalog.FileControlRequest{
			SecurityCode: c.cfg.SecurityCode,
			Name:         name,
			Cmd:          cmd,
			Target:       target,
		})
	})
	if err != nil {
		return 0, err
	}
	resp, err := bodyOf[catalog.FileControlResponse](msg)
	if err != nil {
		return 0, err
	}
	if err := checkResp(catalog.MsgFileControl, resp.RespCode); err != nil {
		return 0, fmt.Errorf("file %q: %w", name, err)
	}
	return time.Duration(resp.HoldOff) * time.Second, nil
}

// TableDefinitions uploads and parses the logger's table definitions.
func (c *Client) TableDefinitions(ctx context.Context) (tabledef.Definitions, error) {
	raw, err := c.UploadFile(ctx, tabledef.FileName)
	if err != nil {
		return tabledef.Definitions{}, err
	}
	return tabledef.Parse(raw)
}
