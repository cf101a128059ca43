package fastboot

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fftools/fastflash/pkg/errors"
)

// Transport is one connection to a device. The TCP transport applies
// the fastboot-over-TCP length framing; messages go in and out whole.
type Transport interface {
	SendMessage(data []byte) error
	ReceiveMessage() ([]byte, error)
	Close() error
}

// Dialer re-establishes a transport after a reboot.
type Dialer func(ctx context.Context) (Transport, error)

// reconnectDelay paces the wait-for-device loop.
const reconnectDelay = 1 * time.Second

// Client implements Driver over a fastboot transport.
type Client struct {
	transport Transport
	dial      Dialer
}

// NewClient wraps an open transport. dial may be nil if the caller
// never needs Reconnect.
func NewClient(t Transport, dial Dialer) *Client {
	return &Client{transport: t, dial: dial}
}

// DialTCP connects to a device listening on addr (host:port), waiting
// for it to appear. The wait loop has no cancellation other than ctx.
func DialTCP(ctx context.Context, addr string) (*Client, error) {
	dial := func(ctx context.Context) (Transport, error) {
		return dialTCPOnce(ctx, addr)
	}
	c := &Client{dial: dial}
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconnect implements Driver.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.dial == nil {
		return fmt.Errorf("fastboot: transport cannot be re-established")
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	for {
		t, err := c.dial(ctx)
		if err == nil {
			c.transport = t
			return nil
		}
		slog.Debug("wait_for_device", "error", err)
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for device")
		case <-time.After(reconnectDelay):
		}
	}
}

// Close releases the transport.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

// response is the device's answer to one command.
type response struct {
	status  string // OKAY or DATA
	payload string // OKAY text or DATA hex length
}

// command sends cmd and consumes responses until a terminal status.
// INFO lines are logged as they arrive.
func (c *Client) command(ctx context.Context, cmd string) (*response, error) {
	if c.transport == nil {
		return nil, fmt.Errorf("fastboot: not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.transport.SendMessage([]byte(cmd)); err != nil {
		return nil, errors.Wrap(err, "send "+cmd)
	}
	return c.readResponse(cmd)
}

func (c *Client) readResponse(cmd string) (*response, error) {
	for {
		msg, err := c.transport.ReceiveMessage()
		if err != nil {
			return nil, errors.Wrap(err, "response to "+cmd)
		}
		if len(msg) < 4 {
			return nil, fmt.Errorf("fastboot: short response %q to %s", msg, cmd)
		}
		status, text := string(msg[:4]), string(msg[4:])
		switch status {
		case "INFO", "TEXT":
			slog.Info("device_info", "text", text)
		case "OKAY", "DATA":
			return &response{status: status, payload: text}, nil
		case "FAIL":
			return nil, fmt.Errorf("remote: '%s'", text)
		default:
			return nil, fmt.Errorf("fastboot: unknown status %q to %s", status, cmd)
		}
	}
}

// GetVar implements Driver.
func (c *Client) GetVar(ctx context.Context, name string) (string, error) {
	resp, err := c.command(ctx, "getvar:"+name)
	if err != nil {
		return "", err
	}
	return resp.payload, nil
}

// Download implements Driver.
func (c *Client) Download(ctx context.Context, label string, data []byte) error {
	slog.Info("download_start", "label", label, "size_kb", len(data)/1024)
	resp, err := c.command(ctx, fmt.Sprintf("download:%08x", len(data)))
	if err != nil {
		return err
	}
	if resp.status != "DATA" {
		return fmt.Errorf("fastboot: expected DATA response, got %s", resp.status)
	}
	accepted, err := strconv.ParseUint(strings.TrimSpace(resp.payload), 16, 64)
	if err != nil || accepted != uint64(len(data)) {
		return fmt.Errorf("fastboot: device accepted %q of %d requested bytes", resp.payload, len(data))
	}
	if err := c.transport.SendMessage(data); err != nil {
		return errors.Wrap(err, "send payload")
	}
	if _, err := c.readResponse("download"); err != nil {
		return err
	}
	return nil
}

// FlashPartition implements Driver.
func (c *Client) FlashPartition(ctx context.Context, partition string, data []byte, current, total int) error {
	label := partition
	if total > 0 {
		label = fmt.Sprintf("%s (%d/%d)", partition, current, total)
	}
	if err := c.Download(ctx, label, data); err != nil {
		return err
	}
	slog.Info("flash_partition", "partition", partition, "chunk", current, "chunks", total)
	_, err := c.command(ctx, "flash:"+partition)
	return err
}

// Erase implements Driver.
func (c *Client) Erase(ctx context.Context, partition string) error {
	slog.Info("erase_partition", "partition", partition)
	_, err := c.command(ctx, "erase:"+partition)
	return err
}

// ResizePartition implements Driver.
func (c *Client) ResizePartition(ctx context.Context, partition, size string) error {
	slog.Info("resize_partition", "partition", partition, "size", size)
	_, err := c.command(ctx, "resize-logical-partition:"+partition+":"+size)
	return err
}

// CreatePartition implements Driver.
func (c *Client) CreatePartition(ctx context.Context, partition, size string) error {
	_, err := c.command(ctx, "create-logical-partition:"+partition+":"+size)
	return err
}

// DeletePartition implements Driver.
func (c *Client) DeletePartition(ctx context.Context, partition string) error {
	_, err := c.command(ctx, "delete-logical-partition:"+partition)
	return err
}

// SetActive implements Driver.
func (c *Client) SetActive(ctx context.Context, slot string) error {
	slog.Info("set_active", "slot", slot)
	_, err := c.command(ctx, "set_active:"+slot)
	return err
}

// Reboot implements Driver.
func (c *Client) Reboot(ctx context.Context) error {
	_, err := c.command(ctx, "reboot")
	return err
}

// RebootTo implements Driver.
func (c *Client) RebootTo(ctx context.Context, target string) error {
	slog.Info("reboot_to", "target", target)
	_, err := c.command(ctx, "reboot-"+target)
	return err
}

// FetchToWriter implements Driver.
func (c *Client) FetchToWriter(ctx context.Context, partition string, offset, length int64, w io.Writer) error {
	cmd := fmt.Sprintf("fetch:%s:0x%x:0x%x", partition, offset, length)
	resp, err := c.command(ctx, cmd)
	if err != nil {
		return err
	}
	if resp.status != "DATA" {
		return fmt.Errorf("fastboot: expected DATA response to fetch, got %s", resp.status)
	}
	var received int64
	for received < length {
		msg, err := c.transport.ReceiveMessage()
		if err != nil {
			return errors.Wrap(err, "fetch payload")
		}
		if _, err := w.Write(msg); err != nil {
			return errors.Wrap(err, "write fetched data")
		}
		received += int64(len(msg))
	}
	if _, err := c.readResponse(cmd); err != nil {
		return err
	}
	return nil
}

// RawCommand implements Driver.
func (c *Client) RawCommand(ctx context.Context, cmd, statusMsg string) error {
	if statusMsg != "" {
		slog.Info("raw_command", "status", statusMsg, "cmd", cmd)
	}
	_, err := c.command(ctx, cmd)
	return err
}

// SnapshotUpdateCommand implements Driver.
func (c *Client) SnapshotUpdateCommand(ctx context.Context, subcommand string) error {
	cmd := "snapshot-update"
	if subcommand != "" {
		cmd += ":" + subcommand
	}
	_, err := c.command(ctx, cmd)
	return err
}

// Continue implements Driver.
func (c *Client) Continue(ctx context.Context) error {
	_, err := c.command(ctx, "continue")
	return err
}

// Upload implements Driver.
func (c *Client) Upload(ctx context.Context, w io.Writer) error {
	resp, err := c.command(ctx, "upload")
	if err != nil {
		return err
	}
	if resp.status != "DATA" {
		return fmt.Errorf("fastboot: expected DATA response to upload, got %s", resp.status)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(resp.payload), 16, 64)
	if err != nil {
		return fmt.Errorf("fastboot: bad upload size %q", resp.payload)
	}
	var received int64
	for received < size {
		msg, err := c.transport.ReceiveMessage()
		if err != nil {
			return errors.Wrap(err, "upload payload")
		}
		if _, err := w.Write(msg); err != nil {
			return errors.Wrap(err, "write uploaded data")
		}
		received += int64(len(msg))
	}
	_, err = c.readResponse("upload")
	return err
}

// tcpTransport frames messages per the fastboot-over-TCP protocol:
// a 4-byte "FB01" handshake in each direction, then every message
// prefixed with its big-endian 64-bit length.
type tcpTransport struct {
	conn net.Conn
}

const tcpHandshake = "FB01"

func dialTCPOnce(ctx context.Context, addr string) (Transport, error) {
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "5554")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte(tcpHandshake)); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "handshake send")
	}
	ack := make([]byte, 4)
	if _, err := io.ReadFull(conn, ack); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "handshake receive")
	}
	if string(ack[:2]) != "FB" {
		conn.Close()
		return nil, fmt.Errorf("fastboot: unexpected handshake %q", ack)
	}
	slog.Info("device_connected", "addr", addr, "protocol", string(ack))
	return &tcpTransport{conn: conn}, nil
}

func (t *tcpTransport) SendMessage(data []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(data)))
	if _, err := t.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.conn.Write(data)
	return err
}

func (t *tcpTransport) ReceiveMessage() ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint64(hdr[:])
	const maxMessage = 1 << 30
	if size > maxMessage {
		return nil, fmt.Errorf("fastboot: oversized message (%d bytes)", size)
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(t.conn, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}
