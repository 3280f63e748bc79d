// internal/artifacts/writer_test.go
package artifacts_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/artifacts"
)

func testBundle() *schemas.ArtifactBundle {
	return &schemas.ArtifactBundle{
		Base: &schemas.BaseArtifacts{
			RunID: "1b4f0e98-2a1c-4b5d-9c3f-7a8e6d5c4b3a",
			URL: schemas.URLArtifact{
				RequestedURL: "https://a.test/",
				FinalURL:     "https://a.test/home",
			},
			DevtoolsLogs: map[string]schemas.DevtoolsLog{
				"defaultPass": {
					{Method: "Network.requestWillBeSent", Params: []byte(`{"requestId":"1"}`)},
				},
			},
			Traces: map[string]*schemas.Trace{
				"defaultPass": {TraceEvents: []json.RawMessage{[]byte(`{"ph":"X","name":"alpha"}`)}},
			},
			Warnings: []string{"slow resource detected"},
		},
		Artifacts: map[string]any{
			"viewport-dimensions": map[string]int{"inner_width": 412},
		},
	}
}

func TestWriterWritesBundleAndSidecars(t *testing.T) {
	dir := t.TempDir()
	w := artifacts.NewWriter(dir, false, zaptest.NewLogger(t))

	runDir, err := w.Write(testBundle())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1b4f0e98-2a1c-4b5d-9c3f-7a8e6d5c4b3a"), runDir)

	// The index keeps everything except the per-pass captures.
	indexData, err := os.ReadFile(filepath.Join(runDir, "bundle.json"))
	require.NoError(t, err)
	var index map[string]any
	require.NoError(t, json.Unmarshal(indexData, &index))
	assert.Equal(t, "1b4f0e98-2a1c-4b5d-9c3f-7a8e6d5c4b3a", index["run_id"])
	assert.Contains(t, index, "viewport-dimensions")
	assert.Nil(t, index["devtools_logs"])
	assert.Nil(t, index["traces"])

	var devtoolsLog schemas.DevtoolsLog
	logData, err := os.ReadFile(filepath.Join(runDir, "devtoolslog-defaultPass.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(logData, &devtoolsLog))
	require.Len(t, devtoolsLog, 1)
	assert.Equal(t, "Network.requestWillBeSent", devtoolsLog[0].Method)

	traceData, err := os.ReadFile(filepath.Join(runDir, "trace-defaultPass.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"traceEvents":[{"ph":"X","name":"alpha"}]}`, string(traceData))
}

func TestWriterCompressesSidecars(t *testing.T) {
	dir := t.TempDir()
	w := artifacts.NewWriter(dir, true, zaptest.NewLogger(t))

	runDir, err := w.Write(testBundle())
	require.NoError(t, err)

	// The index stays plain even with compression on.
	_, err = os.Stat(filepath.Join(runDir, "bundle.json"))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(runDir, "devtoolslog-defaultPass.json.br"))
	require.NoError(t, err)
	defer f.Close()

	decompressed, err := io.ReadAll(brotli.NewReader(f))
	require.NoError(t, err)

	var devtoolsLog schemas.DevtoolsLog
	require.NoError(t, json.Unmarshal(decompressed, &devtoolsLog))
	require.Len(t, devtoolsLog, 1)
	assert.Equal(t, "Network.requestWillBeSent", devtoolsLog[0].Method)

	// No uncompressed sidecar was left behind.
	_, err = os.Stat(filepath.Join(runDir, "devtoolslog-defaultPass.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriterSanitizesPassNames(t *testing.T) {
	dir := t.TempDir()
	w := artifacts.NewWriter(dir, false, zaptest.NewLogger(t))

	bundle := testBundle()
	bundle.Base.DevtoolsLogs = map[string]schemas.DevtoolsLog{
		"pass/../with:odd chars": {},
	}
	bundle.Base.Traces = nil

	runDir, err := w.Write(bundle)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(runDir, "devtoolslog-pass-..-with-odd-chars.json"))
	assert.NoError(t, err)
}

func TestWriterRejectsIncompleteBundles(t *testing.T) {
	w := artifacts.NewWriter(t.TempDir(), false, zaptest.NewLogger(t))

	_, err := w.Write(nil)
	require.Error(t, err)

	_, err = w.Write(&schemas.ArtifactBundle{Base: &schemas.BaseArtifacts{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run id")
}

func TestWriterDoesNotMutateTheBundle(t *testing.T) {
	w := artifacts.NewWriter(t.TempDir(), false, zaptest.NewLogger(t))

	bundle := testBundle()
	_, err := w.Write(bundle)
	require.NoError(t, err)

	assert.NotNil(t, bundle.Base.DevtoolsLogs)
	assert.NotNil(t, bundle.Base.Traces)
}
