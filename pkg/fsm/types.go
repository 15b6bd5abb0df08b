package fsm

// ExportMode selects where the rendered PDF is written
type ExportMode string

const (
	// ModeSave writes the PDF into the export directory
	ModeSave ExportMode = "save"
	// ModeShare writes the PDF into the share cache
	ModeShare ExportMode = "share"
)

// ExportRequest is the FSM input
type ExportRequest struct {
	IDs    []int64
	Mode   ExportMode
	Upload bool

	// Unix seconds used for the file name, fixed at start so retries
	// overwrite the same file
	RequestedAt int64
}

// ExportResponse is the FSM output (accumulated across transitions)
type ExportResponse struct {
	// From Load
	EntryIDs []int64

	// From Render
	PDFPath string
	Pages   int

	// From Publish
	S3Key  string
	SHA256 string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateLoad     = "load"
	StateRender   = "render"
	StatePublish  = "publish"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Export statuses
const (
	StatusRendered  = "rendered"
	StatusPublished = "published"
	StatusComplete  = "complete"
)
