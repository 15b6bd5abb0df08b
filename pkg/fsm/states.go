package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/sthao/quickform/pkg/pdf"
	"github.com/sthao/quickform/pkg/security"
	"github.com/sthao/quickform/pkg/storage"
	"github.com/superfly/fsm"
)

// RecordStore is the subset of the repository the export needs
type RecordStore interface {
	ExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
	GetRecords(ctx context.Context, ids []int64) ([]db.FormRecord, error)
}

// Renderer writes a set of records into a PDF file
type Renderer interface {
	WriteFile(dir, prefix string, records []db.FormRecord, now time.Time) (string, int, error)
}

// ObjectStore publishes exported files
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, key, localPath string) (*storage.UploadResult, error)
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo       RecordStore
	renderer   Renderer
	objects    ObjectStore
	validator  *security.Validator
	exportDir  string
	cacheDir   string
	s3Prefix   string
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies. objects may be nil
// when no bucket is configured; uploads then fail.
func NewMachine(
	repo RecordStore,
	renderer Renderer,
	objects ObjectStore,
	validator *security.Validator,
	exportDir string,
	cacheDir string,
	s3Prefix string,
	maxRetries int,
) *Machine {
	return &Machine{
		repo:       repo,
		renderer:   renderer,
		objects:    objects,
		validator:  validator,
		exportDir:  exportDir,
		cacheDir:   cacheDir,
		s3Prefix:   s3Prefix,
		maxRetries: maxRetries,
	}
}

// OutputLocation returns the directory and file name prefix for mode
func (m *Machine) OutputLocation(mode ExportMode) (string, string) {
	if mode == ModeShare {
		return filepath.Join(m.cacheDir, pdf.SharedDir), pdf.SharePrefix
	}
	return m.exportDir, pdf.SavePrefix
}

// checkRetries aborts once a state has been retried more than maxRetries
// times. The first attempt always runs.
func (m *Machine) checkRetries(ctx context.Context, state string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount > uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "state", state, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// handleLoad resolves which of the requested entries still exist
func (m *Machine) handleLoad(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	slog.Info("fsm_state_load", "entry_ids", req.Msg.IDs, "mode", req.Msg.Mode)

	if err := m.checkRetries(ctx, StateLoad); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &ExportResponse{}
	}

	ids, err := m.repo.ExistingIDs(ctx, req.Msg.IDs)
	if err != nil {
		slog.Error("export_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to resolve entries")
	}

	if len(ids) == 0 {
		slog.Warn("export_no_entries", "requested", req.Msg.IDs)
		resp.ErrorMessage = errors.ErrNoEntries.Error()
		return nil, fsm.Abort(errors.ErrNoEntries)
	}

	if len(ids) < len(req.Msg.IDs) {
		slog.Warn("export_entries_missing", "requested", len(req.Msg.IDs), "found", len(ids))
	}

	resp.EntryIDs = ids
	return fsm.NewResponse(resp), nil
}

// handleRender loads the entries and writes the PDF
func (m *Machine) handleRender(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	slog.Info("fsm_state_render", "mode", req.Msg.Mode)

	if err := m.checkRetries(ctx, StateRender); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	records, err := m.repo.GetRecords(ctx, resp.EntryIDs)
	if err != nil {
		slog.Error("export_records_load_failed", "entry_ids", resp.EntryIDs, "error", err)
		return nil, errors.Wrap(err, "failed to load entries")
	}
	if len(records) == 0 {
		return nil, fsm.Abort(errors.ErrNoEntries)
	}

	dir, prefix := m.OutputLocation(req.Msg.Mode)
	now := time.Unix(req.Msg.RequestedAt, 0)

	path, pages, err := m.renderer.WriteFile(dir, prefix, records, now)
	if err != nil {
		slog.Error("export_render_failed", "dir", dir, "error", err)
		return nil, errors.Wrap(err, "failed to render PDF")
	}

	resp.PDFPath = path
	resp.Pages = pages
	resp.Status = StatusRendered

	slog.Info("export_render_complete", "path", path, "pages", pages, "entries", len(records))

	return fsm.NewResponse(resp), nil
}

// handlePublish uploads the PDF when requested. An object that already
// exists under the key is not uploaded again.
func (m *Machine) handlePublish(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	slog.Info("fsm_state_publish", "upload", req.Msg.Upload)

	if err := m.checkRetries(ctx, StatePublish); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if !req.Msg.Upload {
		slog.Info("export_publish_skipped", "path", resp.PDFPath)
		return fsm.NewResponse(resp), nil
	}
	if m.objects == nil {
		slog.Error("export_publish_unavailable", "reason", "no_bucket")
		return nil, fsm.Abort(fmt.Errorf("upload requested but no S3 bucket is configured"))
	}

	key, err := m.objectKey(resp.PDFPath)
	if err != nil {
		return nil, fsm.Abort(err)
	}

	exists, err := m.objects.Exists(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check object")
	}

	if exists {
		slog.Info("export_already_published", "s3_key", key)
	} else {
		result, err := m.objects.Upload(ctx, key, resp.PDFPath)
		if err != nil {
			slog.Error("export_upload_failed", "s3_key", key, "error", err)
			return nil, errors.Wrap(err, "failed to upload PDF")
		}
		resp.SHA256 = result.SHA256
	}

	resp.S3Key = key
	resp.Status = StatusPublished

	return fsm.NewResponse(resp), nil
}

func (m *Machine) objectKey(pdfPath string) (string, error) {
	name := filepath.Base(pdfPath)
	if m.validator != nil {
		if m.s3Prefix != "" {
			if err := m.validator.ValidatePath(m.s3Prefix); err != nil {
				return "", err
			}
		}
		if err := m.validator.ValidateFileName(name); err != nil {
			return "", err
		}
	}
	return storage.ObjectKey(m.s3Prefix, name), nil
}

// handleComplete marks the export as complete
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	if err := m.checkRetries(ctx, StateComplete); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &ExportResponse{}
	}
	resp.Status = StatusComplete

	slog.Info("fsm_complete", "path", resp.PDFPath, "pages", resp.Pages, "s3_key", resp.S3Key)

	return fsm.NewResponse(resp), nil
}
