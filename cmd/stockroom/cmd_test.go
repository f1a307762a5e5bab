package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/stockroom/internal/api"
	"github.com/hyperengineering/stockroom/internal/config"
	"github.com/hyperengineering/stockroom/internal/mirror"
	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
)

// testEnv points configuration at an isolated database and backup directory.
func testEnv(t *testing.T) (dbPath, backupDir string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "stockroom.db")
	backupDir = filepath.Join(dir, "backups")
	t.Setenv("STOCKROOM_CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("STOCKROOM_DB_PATH", dbPath)
	t.Setenv("STOCKROOM_BACKUP_DIR", backupDir)
	t.Setenv("STOCKROOM_LOG_LEVEL", "error")
	return dbPath, backupDir
}

// executeCmd runs the root command with captured output.
func executeCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	// Cobra parses into package-level variables; reset them between runs.
	jsonOutput = false
	requeueDead = false
	mirrorPort = 0

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

// seedQueue enqueues operations directly and parks the ones marked dead.
func seedQueue(t *testing.T, dbPath string, ops []stocksync.PendingOperation, dead ...int) {
	t.Helper()
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	ids := make([]int64, len(ops))
	for i, op := range ops {
		id, err := db.EnqueueSync(ctx, op)
		if err != nil {
			t.Fatalf("EnqueueSync() error = %v", err)
		}
		ids[i] = id
	}
	for _, i := range dead {
		if err := db.RecordSyncFailure(ctx, ids[i], "remote rejected: 400", true); err != nil {
			t.Fatalf("RecordSyncFailure() error = %v", err)
		}
	}
}

func sampleOps() []stocksync.PendingOperation {
	return []stocksync.PendingOperation{
		{
			Operation:  stocksync.OperationAdd,
			Collection: "products",
			DocumentID: "p1",
			Payload:    json.RawMessage(`{"id":"p1","name":"Arroz"}`),
		},
		{
			Operation:  stocksync.OperationAdd,
			Collection: "groups",
			DocumentID: "g1",
			Payload:    json.RawMessage(`{"id":"g1","name":"Grãos"}`),
		},
	}
}

func TestQueue_HumanOutput(t *testing.T) {
	dbPath, _ := testEnv(t)
	seedQueue(t, dbPath, sampleOps(), 1)

	out, _, err := executeCmd(t, "queue")
	if err != nil {
		t.Fatalf("queue error = %v", err)
	}

	for _, want := range []string{"Pending:     1", "Dead letter: 1", "groups/g1", "remote rejected: 400"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestQueue_JSONOutput(t *testing.T) {
	dbPath, _ := testEnv(t)
	seedQueue(t, dbPath, sampleOps(), 1)

	out, _, err := executeCmd(t, "queue", "--json")
	if err != nil {
		t.Fatalf("queue --json error = %v", err)
	}

	var got struct {
		Stats       stocksync.QueueStats         `json:"stats"`
		DeadLetters []stocksync.PendingOperation `json:"dead_letters"`
		Requeued    int64                        `json:"requeued"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if got.Stats.Pending != 1 || got.Stats.DeadLetter != 1 {
		t.Errorf("stats = %+v, want 1 pending and 1 dead letter", got.Stats)
	}
	if len(got.DeadLetters) != 1 || got.DeadLetters[0].DocumentID != "g1" {
		t.Errorf("dead_letters = %+v, want g1 only", got.DeadLetters)
	}
	if got.Requeued != 0 {
		t.Errorf("requeued = %d, want 0", got.Requeued)
	}
}

func TestQueue_EmptyJSONHasEmptyDeadLetterList(t *testing.T) {
	testEnv(t)

	out, _, err := executeCmd(t, "queue", "--json")
	if err != nil {
		t.Fatalf("queue --json error = %v", err)
	}
	if !strings.Contains(out, `"dead_letters": []`) {
		t.Errorf("expected empty dead_letters array, got:\n%s", out)
	}
}

func TestQueue_RequeueDead(t *testing.T) {
	dbPath, _ := testEnv(t)
	seedQueue(t, dbPath, sampleOps(), 1)

	out, _, err := executeCmd(t, "queue", "--requeue-dead")
	if err != nil {
		t.Fatalf("queue --requeue-dead error = %v", err)
	}
	if !strings.Contains(out, "Requeued 1 parked operations") {
		t.Errorf("output missing requeue count:\n%s", out)
	}
	if !strings.Contains(out, "Pending:     2") {
		t.Errorf("expected both operations pending after requeue:\n%s", out)
	}
	if strings.Contains(out, "LAST ERROR") {
		t.Errorf("dead letter table should be empty after requeue:\n%s", out)
	}
}

func TestSync_WithoutRemoteDefers(t *testing.T) {
	dbPath, _ := testEnv(t)
	seedQueue(t, dbPath, sampleOps())

	out, _, err := executeCmd(t, "sync")
	if err != nil {
		t.Fatalf("sync error = %v", err)
	}
	if !strings.Contains(out, "Remote unavailable") {
		t.Errorf("expected deferral message, got:\n%s", out)
	}
}

func TestSync_DrainsToMirror(t *testing.T) {
	dbPath, _ := testEnv(t)
	seedQueue(t, dbPath, sampleOps())

	docs := mirror.NewDocuments()
	srv := httptest.NewServer(api.NewMirrorRouter(api.NewMirrorHandler(docs, "mirror-key", "test")))
	defer srv.Close()
	t.Setenv("STOCKROOM_REMOTE_URL", srv.URL)
	t.Setenv("STOCKROOM_REMOTE_API_KEY", "mirror-key")

	out, _, err := executeCmd(t, "sync", "--json")
	if err != nil {
		t.Fatalf("sync --json error = %v", err)
	}

	var result struct {
		Deferred bool `json:"deferred"`
		Applied  int  `json:"applied"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if result.Deferred || result.Applied != 2 {
		t.Errorf("result = %+v, want 2 applied", result)
	}
	if _, ok := docs.Get("products", "p1"); !ok {
		t.Error("products/p1 missing from mirror")
	}
	if _, ok := docs.Get("groups", "g1"); !ok {
		t.Error("groups/g1 missing from mirror")
	}
}

func TestBackup_WritesLocalCopy(t *testing.T) {
	_, backupDir := testEnv(t)

	out, _, err := executeCmd(t, "backup")
	if err != nil {
		t.Fatalf("backup error = %v", err)
	}
	if !strings.Contains(out, "Backup written to "+backupDir) {
		t.Errorf("output missing backup path:\n%s", out)
	}
	if strings.Contains(out, "Download:") {
		t.Errorf("no download URL expected without storage:\n%s", out)
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("read backup dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("backup dir has %d entries, want 1", len(entries))
	}
}

func TestBackup_JSONOutput(t *testing.T) {
	testEnv(t)

	out, _, err := executeCmd(t, "backup", "--json")
	if err != nil {
		t.Fatalf("backup --json error = %v", err)
	}

	var got struct {
		Backup struct {
			Path string `json:"path"`
		} `json:"backup"`
		DownloadURL string `json:"download_url"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if got.Backup.Path == "" {
		t.Error("backup path is empty")
	}
	if got.DownloadURL != "" {
		t.Errorf("download_url = %q, want empty", got.DownloadURL)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	testEnv(t)
	t.Setenv("STOCKROOM_LOG_FORMAT", "xml")

	_, _, err := executeCmd(t, "queue")
	if err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"warn":    "WARN",
		"error":   "ERROR",
		"info":    "INFO",
		"verbose": "INFO",
	}
	for in, want := range tests {
		if got := parseLogLevel(in).String(); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf)
	if closer != nil {
		t.Error("closer should be nil without a log file")
	}
	logger.Info("hello", "k", "v")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json format produced %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["k"] != "v" {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	logger, _ = newLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(buf.String(), "msg=kept") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockroom.log")
	var console bytes.Buffer

	logger, closer := newLogger(config.LogConfig{
		Level:      "info",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}, &console)
	if closer == nil {
		t.Fatal("expected closer for file logging")
	}
	logger.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(console.String(), "to both") {
		t.Errorf("console = %q", console.String())
	}
}
