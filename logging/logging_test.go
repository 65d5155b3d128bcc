package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"daemonkit/logging"
)

func TestNewWritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "daemon.log")

	logger, err := logging.New(logging.Options{
		Level:            "debug",
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("guardian started", logging.Int(logging.FieldPID, 123))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal log line %q: %v", data, err)
	}
	if record["msg"] != "guardian started" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record["pid"] != float64(123) {
		t.Fatalf("pid = %v", record["pid"])
	}
}

func TestNewConsoleFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "daemon.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	component := logging.NewComponentLogger(logger, "guardian")
	component.Info("executor exited", logging.Int(logging.FieldExitCode, 1))
	component.Debug("suppressed at info level")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "guardian: executor exited") {
		t.Fatalf("missing component prefix in %q", out)
	}
	if !strings.Contains(out, "exit_code=1") {
		t.Fatalf("missing attribute in %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("should vanish", logging.Error(os.ErrClosed))
}
