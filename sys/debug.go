package sys

import (
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
)

var _ FileHandle = (*DebugFile)(nil)
var nextID atomic.Uint64

var listFD sync.Map // id -> file name

var debugLogger atomic.Pointer[slog.Logger]

// SetDebugLogger sets the logger used by debug handles. The default is slog.Default().
func SetDebugLogger(logger *slog.Logger) {
	debugLogger.Store(logger)
}

// DebugFile wraps an *os.File and tracks it until it is closed.
type DebugFile struct {
	RealFile
	id     uint64
	logger *slog.Logger
}

func newDebugFile(f *os.File) *DebugFile {
	logger := debugLogger.Load()
	if logger == nil {
		logger = slog.Default()
	}
	id := nextID.Add(1)
	logger = logger.With("component", "DebugFile", "id", id, "file_name", f.Name())
	logger.Debug("Opening file")
	listFD.Store(id, f.Name())
	return &DebugFile{RealFile: RealFile{f: f}, id: id, logger: logger}
}

func (df *DebugFile) Close() error {
	df.logger.Debug("Closing file")
	listFD.Delete(df.id)
	return df.f.Close()
}

// OpenHandles lists the names of debug handles that have not been closed.
func OpenHandles() []string {
	var names []string
	listFD.Range(func(_, value any) bool {
		names = append(names, value.(string))
		return true
	})
	sort.Strings(names)
	return names
}
