package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/mediasync/cli/config"
	"github.com/pithecene-io/mediasync/journal"
	"github.com/pithecene-io/mediasync/session"
	"github.com/pithecene-io/mediasync/transport/ws"
)

func newTestApp(out *bytes.Buffer, commands ...*cli.Command) *cli.App {
	return &cli.App{
		Name:     "mediasync",
		Writer:   out,
		Commands: commands,
		// Keep cli.Exit from calling os.Exit inside tests.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return exitUsage
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediasync.yaml")
	yaml := "endpoint: ws://from-file/ws\nengine:\n  jitter_window: 500ms\njournal:\n  path: /tmp/j\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	var got *config.Config
	probe := &cli.Command{
		Name:  "probe",
		Flags: PlayCommand().Flags,
		Action: func(c *cli.Context) error {
			var err error
			got, err = loadConfig(c)
			return err
		},
	}
	app := newTestApp(&bytes.Buffer{}, probe)
	err := app.Run([]string{"mediasync", "probe",
		"--config", path,
		"--endpoint", "wss://from-flag/ws",
		"--header", "Authorization: Bearer x",
		"--max-attempts", "7",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got.Endpoint != "wss://from-flag/ws" {
		t.Errorf("endpoint = %q, want flag value", got.Endpoint)
	}
	if got.Engine.JitterWindow.String() != "500ms" {
		t.Errorf("jitter_window = %v, want file value", got.Engine.JitterWindow)
	}
	if got.Headers["Authorization"] != "Bearer x" {
		t.Errorf("headers = %v", got.Headers)
	}
	if got.Reconnect.MaxAttempts == nil || *got.Reconnect.MaxAttempts != 7 {
		t.Error("expected max attempts from flag")
	}
	if got.Journal.Backend != "fs" {
		t.Errorf("journal backend = %q, want fs implied by path", got.Journal.Backend)
	}
}

func TestLoadConfig_BadHeader(t *testing.T) {
	probe := &cli.Command{
		Name:   "probe",
		Flags:  PlayCommand().Flags,
		Action: func(c *cli.Context) error { _, err := loadConfig(c); return err },
	}
	err := newTestApp(&bytes.Buffer{}, probe).Run([]string{"mediasync", "probe", "--header", "novalue"})
	if err == nil || !strings.Contains(err.Error(), "invalid --header") {
		t.Errorf("expected header error, got %v", err)
	}
}

func TestExitFor(t *testing.T) {
	tests := []struct {
		name   string
		result *session.Result
		err    error
		want   int
	}{
		{"clean", &session.Result{Reason: session.ReasonStreamEnd}, nil, exitSuccess},
		{"canceled", &session.Result{Reason: session.ReasonCanceled}, nil, exitSuccess},
		{"transport", &session.Result{Reason: session.ReasonTransportError}, &ws.TransportError{Err: errors.New("refused")}, exitTransport},
		{"source", &session.Result{Reason: session.ReasonSourceError}, errors.New("bad file"), exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(exitFor(tt.result, tt.err)); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildAdapter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AdapterConfig
		wantNil bool
		wantErr bool
	}{
		{"none", config.AdapterConfig{}, true, false},
		{"webhook", config.AdapterConfig{Type: "webhook", URL: "http://localhost/hook"}, false, false},
		{"redis", config.AdapterConfig{Type: "redis", URL: "redis://localhost:6379/0"}, false, false},
		{"unknown", config.AdapterConfig{Type: "kafka", URL: "x"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := buildAdapter(&config.Config{Adapter: tt.cfg})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (a == nil) != tt.wantNil {
				t.Errorf("adapter = %v, wantNil %v", a, tt.wantNil)
			}
			if a != nil {
				_ = a.Close()
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(&out, VersionCommand("abc123"))
	if err := app.Run([]string{"mediasync", "version", "--format", "json"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, out.String())
	}
	if resp.Commit != "abc123" || resp.Version == "" || resp.ProtocolVersion != 1 {
		t.Errorf("resp = %+v", resp)
	}

	err := app.Run([]string{"mediasync", "version", "--tui"})
	if exitCode(err) != exitUsage {
		t.Errorf("--tui should be rejected, got %v", err)
	}
}

func packetLine(seq int64) string {
	return fmt.Sprintf(`{"type":"media_packet","packet":{"sessionId":"replay-1","seq":%d,"t0":0,"hash":"h%d",`+
		`"tracks":[{"kind":"audio","pts":0,"dur":20,"payloadRef":"a%d.mp3","codec":"mp3"},`+
		`{"kind":"subtitle","pts":0,"dur":20,"payloadRef":"line %d","codec":"text"}]}}`, seq, seq, seq, seq)
}

func TestReplayThenStatsAndHistory(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "session.jsonl")
	lines := strings.Join([]string{packetLine(2), packetLine(1), packetLine(3)}, "\n")
	if err := os.WriteFile(recording, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	journalDir := filepath.Join(dir, "journal")

	var out bytes.Buffer
	app := newTestApp(&out, ReplayCommand(), StatsCommand(), HistoryCommand())

	err := app.Run([]string{"mediasync", "replay",
		"--file", recording,
		"--jitter-window", "10ms",
		"--journal-path", journalDir,
		"--log-level", "error",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out.String(), "session replay-1: stream_end") {
		t.Errorf("unexpected summary: %q", out.String())
	}

	out.Reset()
	if err := app.Run([]string{"mediasync", "stats", "--journal-path", journalDir, "--format", "json"}); err != nil {
		t.Fatalf("stats: %v", err)
	}
	var summary journal.SessionSummary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("decode stats: %v (%s)", err, out.String())
	}
	if summary.SessionID != "replay-1" || summary.Played != 3 || summary.Source != "replay" {
		t.Errorf("summary = %+v", summary)
	}

	out.Reset()
	if err := app.Run([]string{"mediasync", "history", "--journal-path", journalDir, "--session", "replay-1", "--format", "json"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	var rows []journal.PlaybackRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode history: %v (%s)", err, out.String())
	}
	if len(rows) != 3 || rows[0].Seq != 1 || rows[2].Seq != 3 || rows[0].Tracks != 2 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestStats_NoJournal(t *testing.T) {
	app := newTestApp(&bytes.Buffer{}, StatsCommand())
	err := app.Run([]string{"mediasync", "stats"})
	if exitCode(err) != exitUsage {
		t.Errorf("expected usage error without --journal-path, got %v", err)
	}
}

func TestPlay_RequiresEndpoint(t *testing.T) {
	app := newTestApp(&bytes.Buffer{}, PlayCommand())
	err := app.Run([]string{"mediasync", "play"})
	if exitCode(err) != exitUsage || !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("expected endpoint usage error, got %v", err)
	}
}
