package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/ble/bletest"
	"github.com/chaz8081/hubload/internal/upload"
)

const validScript = `from pybricks.hubs import InventorHub
from pybricks.tools import wait

hub = InventorHub()
print("ready")
wait(100)
`

var testDevice = ble.Device{Name: "Pybricks Hub", Address: "AA:BB:CC:DD:EE:FF", RSSI: -40}

// fastConfig writes a config without protocol delays and returns its path.
func fastConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `timing:
  settle_after_interrupt: 0s
  settle_after_raw_mode: 0s
  inter_chunk: 0s
  write_timeout: 0s
  connect_timeout: 1s
device:
  scan_timeout: 10ms
upload:
  output_grace: 0s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.py")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the CLI with args against adapter and returns its output
// and exit code.
func execute(t *testing.T, adapter ble.Adapter, args ...string) (string, string, int) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.newAdapter = func() ble.Adapter { return adapter }

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	code := exitSuccess
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		code = handleError(a.out, err)
	}
	return stdout.String(), stderr.String(), code
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		args     []string
		wantCode int
		wantText string
	}{
		{"valid", validScript, nil, exitSuccess, "is valid"},
		{"banned import", validScript + "import hub\n", nil, exitValidation, "import hub"},
		{"missing header", "print('hi')\n", nil, exitValidation, "Pybricks imports"},
		{"tabs", validScript + "if True:\n\tpass\n", nil, exitValidation, "tabs"},
		{"bad target name", validScript, []string{"--name", "My-Robot.py"}, exitValidation, "lowercase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScript(t, tt.script)
			args := append([]string{"validate", path}, tt.args...)
			stdout, stderr, code := execute(t, bletest.NewAdapter(), args...)
			require.Equal(t, tt.wantCode, code, "stderr: %s", stderr)
			assert.Contains(t, stdout+stderr, tt.wantText)
		})
	}
}

func TestValidateCommandMissingFile(t *testing.T) {
	_, _, code := execute(t, bletest.NewAdapter(), "validate", "/nonexistent/main.py")
	assert.Equal(t, exitGeneral, code)
}

func TestUploadCommand(t *testing.T) {
	adapter := bletest.NewAdapter(testDevice)
	path := writeScript(t, validScript)

	stdout, stderr, code := execute(t, adapter, "--config", fastConfig(t), "upload", path)
	require.Equal(t, exitSuccess, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Uploaded")

	conn := adapter.Latest()
	writes := conn.RX.Writes()
	require.GreaterOrEqual(t, len(writes), 4)
	assert.Equal(t, []byte{0x03}, writes[0])
	assert.Equal(t, []byte{0x05}, writes[1])
	assert.Equal(t, []byte{0x04}, writes[len(writes)-1])
	assert.Equal(t, validScript, string(bytes.Join(writes[2:len(writes)-1], nil)))
	assert.Equal(t, 1, conn.Disconnects())
}

func TestUploadCommandReportsFirstProgressStep(t *testing.T) {
	path := writeScript(t, validScript)

	_, stderr, code := execute(t, bletest.NewAdapter(testDevice), "--config", fastConfig(t), "upload", path)
	require.Equal(t, exitSuccess, code, "stderr: %s", stderr)
	assert.Contains(t, stderr, "(0%)")
	assert.Contains(t, stderr, "(100%)")
}

func TestUploadCommandPrintsOutputDuringGrace(t *testing.T) {
	adapter := bletest.NewAdapter(testDevice)
	adapter.Prepare = func(c *bletest.Connection) {
		c.RX.WriteHook = func(_ int, data []byte) error {
			if bytes.Equal(data, []byte{0x04}) {
				c.TX.SimulateNotification([]byte("Traceback (most recent call last):\n"))
			}
			return nil
		}
	}
	path := writeScript(t, validScript)

	stdout, stderr, code := execute(t, adapter, "--config", fastConfig(t), "upload", "--grace", "300ms", path)
	require.Equal(t, exitSuccess, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Traceback (most recent call last):")
	assert.Equal(t, 1, adapter.Latest().Disconnects())
}

func TestUploadCommandNoHub(t *testing.T) {
	path := writeScript(t, validScript)

	_, stderr, code := execute(t, bletest.NewAdapter(), "--config", fastConfig(t), "upload", path)
	require.Equal(t, exitNotFound, code, "stderr: %s", stderr)
	assert.Contains(t, stderr, "running Pybricks")
}

func TestUploadCommandInvalidScriptSendsNothing(t *testing.T) {
	adapter := bletest.NewAdapter(testDevice)
	path := writeScript(t, "import hub\n")

	_, _, code := execute(t, adapter, "--config", fastConfig(t), "upload", path)
	require.Equal(t, exitValidation, code)
	assert.Empty(t, adapter.Latest().RX.Writes())
}

func TestUploadCommandTransferFailure(t *testing.T) {
	adapter := bletest.NewAdapter(testDevice)
	adapter.Prepare = func(c *bletest.Connection) {
		c.RX.WriteHook = func(n int, _ []byte) error {
			if n == 3 {
				return errors.New("gatt: write rejected")
			}
			return nil
		}
	}
	path := writeScript(t, validScript)

	_, stderr, code := execute(t, adapter, "--config", fastConfig(t), "upload", path)
	require.Equal(t, exitTransfer, code, "stderr: %s", stderr)
	assert.Contains(t, stderr, "hubload stop")
}

func TestUploadCommandNoScript(t *testing.T) {
	_, _, code := execute(t, bletest.NewAdapter(testDevice), "--config", fastConfig(t), "upload")
	assert.Equal(t, exitUsage, code)
}

func TestProgressStep(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		offsets []int
		want    []int
	}{
		{"quarter steps", 100, []int{0, 5, 20, 25, 40, 50, 60, 80, 95, 100}, []int{0, 25, 50, 80, 100}},
		{"first event below 25%", 100, []int{10, 20, 30}, []int{10, 30}},
		{"single chunk", 8, []int{0, 8}, []int{0, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProgress()
			var got []int
			for _, off := range tt.offsets {
				if pct, ok := p.step(off, tt.total); ok {
					got = append(got, pct)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStopCommand(t *testing.T) {
	adapter := bletest.NewAdapter(testDevice)

	stdout, stderr, code := execute(t, adapter, "--config", fastConfig(t), "stop")
	require.Equal(t, exitSuccess, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Stop signal sent")
	assert.Equal(t, [][]byte{{0x03}}, adapter.Latest().RX.Writes())
}

func TestScanCommand(t *testing.T) {
	other := ble.Device{Name: "Other Hub", Address: "11:22:33:44:55:66", RSSI: -70}
	stdout, stderr, code := execute(t, bletest.NewAdapter(testDevice, other), "--config", fastConfig(t), "scan")
	require.Equal(t, exitSuccess, code, "stderr: %s", stderr)
	for _, want := range []string{"NAME", "Pybricks Hub", "AA:BB:CC:DD:EE:FF", "Other Hub"} {
		assert.Contains(t, stdout, want)
	}
}

func TestScanCommandNothingFound(t *testing.T) {
	_, _, code := execute(t, bletest.NewAdapter(), "--config", fastConfig(t), "scan")
	assert.Equal(t, exitNotFound, code)
}

func TestInitCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	for i := 0; i < 2; i++ {
		cmd := newRootCmd(a)
		cmd.SetArgs([]string{"init"})
		require.NoError(t, cmd.ExecuteContext(context.Background()), "run %d", i)
	}

	assert.FileExists(t, filepath.Join(home, ".config", "hubload", "config.yaml"))
	assert.Contains(t, stderr.String(), "already exists", "second init should report existing config")
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timing:\n  chunk_size: 64\n"), 0644))

	_, stderr, code := execute(t, bletest.NewAdapter(), "--config", path, "scan")
	assert.Equal(t, exitConfig, code, "stderr: %s", stderr)
}

func TestUnknownCommand(t *testing.T) {
	_, _, code := execute(t, bletest.NewAdapter(), "flash")
	assert.Equal(t, exitUsage, code)
}

func TestKindError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantHint string
	}{
		{"not found", ble.ErrDeviceNotFound, exitNotFound, "running Pybricks"},
		{"timeout", ble.ErrTimeout, exitTimeout, "connect_timeout"},
		{"cancelled", context.Canceled, exitCancelled, ""},
		{"gatt", ble.ErrGattConnectFailed, exitConnect, "off and on"},
		{"link lost", &upload.Error{Kind: upload.KindLinkLost, Phase: upload.PhaseTransferring}, exitTransfer, "hubload stop"},
		{"timeout mid transfer", &upload.Error{Kind: upload.KindTimeout, Phase: upload.PhaseTransferring}, exitTimeout, "hubload stop"},
		{"busy", &upload.Error{Kind: upload.KindBusy, Err: upload.ErrBusy}, exitGeneral, "Wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := kindError("failed", tt.err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Contains(t, e.Hint, tt.wantHint)
		})
	}
}
