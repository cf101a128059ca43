package fastboot

import (
	"context"
	"fmt"
	"io"
)

// FlashRecord is one FlashPartition call observed by the mock.
type FlashRecord struct {
	Partition string
	Size      int
	Current   int
	Total     int
}

// ResizeRecord is one ResizePartition call observed by the mock.
type ResizeRecord struct {
	Partition string
	Size      string
}

// Mock is an in-memory Driver for tests. Variables the device would
// report live in Vars; queries for anything else fail the way a real
// bootloader fails an unknown getvar.
type Mock struct {
	Vars      map[string]string
	FetchData map[string][]byte
	FailCmds  map[string]error

	Flashes     []FlashRecord
	Downloads   [][]byte
	Erased      []string
	Resizes     []ResizeRecord
	Created     []ResizeRecord
	Deleted     []string
	Actives     []string
	Reboots     []string
	RawCommands []string
	Snapshots   []string
	Reconnects  int
}

// NewMock creates a mock with the given variables.
func NewMock(vars map[string]string) *Mock {
	if vars == nil {
		vars = map[string]string{}
	}
	return &Mock{Vars: vars}
}

func (m *Mock) fail(cmd string) error {
	if err, ok := m.FailCmds[cmd]; ok {
		return err
	}
	return nil
}

func (m *Mock) GetVar(_ context.Context, name string) (string, error) {
	if err := m.fail("getvar:" + name); err != nil {
		return "", err
	}
	value, ok := m.Vars[name]
	if !ok {
		return "", fmt.Errorf("remote: 'GetVar Variable Not found'")
	}
	return value, nil
}

func (m *Mock) Download(_ context.Context, _ string, data []byte) error {
	if err := m.fail("download"); err != nil {
		return err
	}
	m.Downloads = append(m.Downloads, data)
	return nil
}

func (m *Mock) FlashPartition(_ context.Context, partition string, data []byte, current, total int) error {
	if err := m.fail("flash:" + partition); err != nil {
		return err
	}
	m.Flashes = append(m.Flashes, FlashRecord{
		Partition: partition, Size: len(data), Current: current, Total: total,
	})
	return nil
}

func (m *Mock) Erase(_ context.Context, partition string) error {
	if err := m.fail("erase:" + partition); err != nil {
		return err
	}
	m.Erased = append(m.Erased, partition)
	return nil
}

func (m *Mock) ResizePartition(_ context.Context, partition, size string) error {
	m.Resizes = append(m.Resizes, ResizeRecord{Partition: partition, Size: size})
	return nil
}

func (m *Mock) CreatePartition(_ context.Context, partition, size string) error {
	m.Created = append(m.Created, ResizeRecord{Partition: partition, Size: size})
	return nil
}

func (m *Mock) DeletePartition(_ context.Context, partition string) error {
	m.Deleted = append(m.Deleted, partition)
	return nil
}

func (m *Mock) SetActive(_ context.Context, slot string) error {
	m.Actives = append(m.Actives, slot)
	return nil
}

func (m *Mock) Reboot(context.Context) error {
	m.Reboots = append(m.Reboots, "")
	return nil
}

func (m *Mock) RebootTo(_ context.Context, target string) error {
	m.Reboots = append(m.Reboots, target)
	if target == "fastboot" {
		// Entering userspace fastboot changes what the device reports.
		m.Vars[VarIsUserspace] = "yes"
	}
	return nil
}

func (m *Mock) FetchToWriter(_ context.Context, partition string, offset, length int64, w io.Writer) error {
	data, ok := m.FetchData[partition]
	if !ok {
		return fmt.Errorf("remote: 'unknown partition %s'", partition)
	}
	if offset+length > int64(len(data)) {
		return fmt.Errorf("remote: 'fetch range out of bounds'")
	}
	_, err := w.Write(data[offset : offset+length])
	return err
}

func (m *Mock) RawCommand(_ context.Context, cmd, _ string) error {
	if err := m.fail(cmd); err != nil {
		return err
	}
	m.RawCommands = append(m.RawCommands, cmd)
	return nil
}

func (m *Mock) SnapshotUpdateCommand(_ context.Context, subcommand string) error {
	m.Snapshots = append(m.Snapshots, subcommand)
	return nil
}

func (m *Mock) Continue(context.Context) error {
	return nil
}

func (m *Mock) Upload(_ context.Context, w io.Writer) error {
	_, err := w.Write(m.FetchData["upload"])
	return err
}

func (m *Mock) Reconnect(context.Context) error {
	m.Reconnects++
	return nil
}
