// internal/artifacts/writer.go

// Package artifacts persists finished run bundles to disk. Each run gets its
// own directory holding a bundle.json index plus one file per recorded
// devtools log and trace, so the bulky captures do not bloat the index.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// Writer lays out run artifacts under a base directory:
//
//	<dir>/<run id>/bundle.json
//	<dir>/<run id>/devtoolslog-<pass>.json[.br]
//	<dir>/<run id>/trace-<pass>.json[.br]
//
// The index stays uncompressed so it opens directly; the per-pass capture
// files are brotli-compressed when compression is on.
type Writer struct {
	dir      string
	compress bool
	logger   *zap.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, compress bool, logger *zap.Logger) *Writer {
	return &Writer{
		dir:      dir,
		compress: compress,
		logger:   logger.Named("artifacts"),
	}
}

// Write persists the bundle and returns the run's directory.
func (w *Writer) Write(bundle *schemas.ArtifactBundle) (string, error) {
	if bundle == nil || bundle.Base == nil {
		return "", fmt.Errorf("artifact bundle has no base artifacts")
	}
	if bundle.Base.RunID == "" {
		return "", fmt.Errorf("artifact bundle has no run id")
	}

	runDir := filepath.Join(w.dir, safeName(bundle.Base.RunID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory %s: %w", runDir, err)
	}

	for passName, devtoolsLog := range bundle.Base.DevtoolsLogs {
		path := filepath.Join(runDir, "devtoolslog-"+safeName(passName)+".json")
		if err := w.writeJSON(path, devtoolsLog); err != nil {
			return "", err
		}
	}
	for passName, trace := range bundle.Base.Traces {
		if trace == nil {
			continue
		}
		path := filepath.Join(runDir, "trace-"+safeName(passName)+".json")
		if err := w.writeJSON(path, trace); err != nil {
			return "", err
		}
	}

	// The captures live in their own files; the index carries everything
	// else. Work on a copy so the caller's bundle stays intact.
	baseCopy := *bundle.Base
	baseCopy.DevtoolsLogs = nil
	baseCopy.Traces = nil
	index := &schemas.ArtifactBundle{Base: &baseCopy, Artifacts: bundle.Artifacts}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling bundle index: %w", err)
	}
	indexPath := filepath.Join(runDir, "bundle.json")
	if err := os.WriteFile(indexPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", indexPath, err)
	}

	w.logger.Info("Artifact bundle written.",
		zap.String("dir", runDir),
		zap.Int("devtools_logs", len(bundle.Base.DevtoolsLogs)),
		zap.Int("traces", len(bundle.Base.Traces)),
	)
	return runDir, nil
}

func (w *Writer) writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}

	if !w.compress {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		return nil
	}

	path += ".br"
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	bw := brotli.NewWriterLevel(f, brotli.DefaultCompression)
	if _, err := bw.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := bw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finishing compression of %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// safeName keeps run and pass derived file names inside the run directory.
func safeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	s := string(out)
	// Dot-only names would resolve to the directory itself or its parent.
	if strings.Trim(s, ".") == "" {
		return "unnamed"
	}
	return s
}
