// Package fsm implements the form export finite state machine workflow.
// It resolves the selected entries, renders them into one PDF and optionally
// publishes the file to S3 using the superfly/fsm library.
package fsm

import (
	"context"

	"github.com/sthao/quickform/pkg/errors"
	"github.com/superfly/fsm"
)

// WorkflowName is the registered name of the export state machine
const WorkflowName = "form-export"

// Register registers the export FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ExportRequest, ExportResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ExportRequest, ExportResponse](manager, WorkflowName).
		Start(StateLoad, m.handleLoad).
		To(StateRender, m.handleRender).
		To(StatePublish, m.handlePublish).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
