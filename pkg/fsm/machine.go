// Package fsm implements the package fetch workflow: download a
// factory package from S3, verify it, and record it as ready for
// flashing, with durable resume via the superfly/fsm library.
package fsm

import (
	"context"

	"github.com/fftools/fastflash/pkg/errors"
	"github.com/superfly/fsm"
)

// Register registers the package fetch FSM.
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[PackageRequest, PackageResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[PackageRequest, PackageResponse](manager, "package-fetch").
		Start(StateCheckDB, m.handleCheckDB).
		To(StateDownload, m.handleDownload).
		To(StateVerify, m.handleVerify).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}
	return start, resume, nil
}
