package packfs

// ProgressEvent represents a progress update during mount, save, import, or
// extract operations.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the file or archive currently being processed, if applicable.
	Path string

	// BytesDone is the number of bytes completed in the current operation.
	BytesDone uint64

	// BytesTotal is the total bytes for the current operation.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// FilesDone is the number of files completed.
	FilesDone int

	// FilesTotal is the total number of files.
	// Zero indicates the total is unknown.
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages.
const (
	// StageReadingIndex indicates an archive index is being read.
	StageReadingIndex ProgressStage = iota

	// StageMounting indicates index entries are being attached to the tree.
	StageMounting

	// StageLoading indicates payloads are being read into memory before a
	// save.
	StageLoading

	// StageWritingIndex indicates the new index is being written.
	StageWritingIndex

	// StageWritingData indicates payloads are being written.
	StageWritingData

	// StageFinalizing indicates a staged archive is being promoted and
	// remounted.
	StageFinalizing

	// StageImporting indicates loose files are being encoded into the tree.
	StageImporting

	// StageExtracting indicates files are being written to disk.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageReadingIndex:
		return "reading index"
	case StageMounting:
		return "mounting"
	case StageLoading:
		return "loading"
	case StageWritingIndex:
		return "writing index"
	case StageWritingData:
		return "writing data"
	case StageFinalizing:
		return "finalizing"
	case StageImporting:
		return "importing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)

func (fsys *FileSystem) report(ev ProgressEvent) {
	if fsys.progress != nil {
		fsys.progress(ev)
	}
}
