package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/audio"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/config"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/output"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

func mockConfig(t *testing.T) config.Config {
	t.Helper()
	log.SetDefault(log.New(io.Discard))

	c := config.Default()
	c.Engine = "mock"
	c.Output.Dir = t.TempDir()
	c.Cache.Dir = t.TempDir()
	c.Cache.MemoryMB = 1
	c.Cache.DiskMB = 1
	c.Mock.BlockWords = []string{"forbidden"}
	return c
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return p
}

func TestNewApp_Validation(t *testing.T) {
	c := mockConfig(t)
	c.Engine = ""
	if _, err := newApp(c); !errors.Is(err, tts.ErrNoEngineConfigured) {
		t.Errorf("expected ErrNoEngineConfigured, got %v", err)
	}

	c = mockConfig(t)
	c.Engine = "gemini"
	c.Gemini.APIKey = ""
	if _, err := newApp(c); !errors.Is(err, tts.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}

	c = mockConfig(t)
	c.Voice = " "
	if _, err := newApp(c); !errors.Is(err, tts.ErrMissingVoice) {
		t.Errorf("expected ErrMissingVoice, got %v", err)
	}
}

func TestApp_RunWithMockEngine(t *testing.T) {
	c := mockConfig(t)
	a, err := newApp(c)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	in := t.TempDir()
	srt := writeInput(t, in, "ep1.srt", "1\n00:00:00,000 --> 00:00:01,000\nHello.\n\n2\n00:00:03,000 --> 00:00:04,000\nA forbidden word.\n")
	txt := writeInput(t, in, "notes.txt", "First.\nSecond.\n")
	missing := filepath.Join(in, "gone.txt")

	loadErrs := a.load([]string{srt, txt, missing})
	if len(loadErrs) != 1 {
		t.Fatalf("expected one load error, got %v", loadErrs)
	}

	rows, err := a.run(context.Background(), loadErrs)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	timed := rows[0]
	if timed.Batch.Status != ttypes.StatusDone || timed.Err != nil {
		t.Fatalf("unexpected srt row %+v", timed)
	}
	if done, failed := timed.Batch.Counts(); done != 2 || failed != 0 {
		t.Errorf("blocked line should recover after the rewrite, got %d/%d", done, failed)
	}
	if timed.Batch.Lines[1].Text == "A forbidden word." {
		t.Error("expected the stored text to be the rewritten one")
	}
	if filepath.Base(timed.Result.MergedFile) != "ep1_timed_merged.wav" {
		t.Errorf("unexpected merged file %s", timed.Result.MergedFile)
	}

	data, err := os.ReadFile(timed.Result.MergedFile)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	info, _, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if int(info.DataSize) != audio.CanvasBytes(4000+audio.TailPaddingMs) {
		t.Errorf("unexpected canvas %d", info.DataSize)
	}

	if filepath.Base(rows[1].Result.MergedFile) != "notes_merged.wav" {
		t.Errorf("unexpected merged file %s", rows[1].Result.MergedFile)
	}
	if rows[2].Batch.Status != ttypes.StatusError || rows[2].Err == nil {
		t.Errorf("missing file should be an Error batch, got %+v", rows[2])
	}

	report, err := output.ReadReport(filepath.Join(rows[1].Result.Dir, output.ReportFileName))
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}
	if report.Run.Engine != "mock" || len(report.Lines) != 2 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestApp_ConvertFile(t *testing.T) {
	c := mockConfig(t)
	c.Output.Lines = false
	a, err := newApp(c)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	p := writeInput(t, t.TempDir(), "drop.txt", "One line.\n")
	row, err := a.convertFile(context.Background(), p)
	if err != nil {
		t.Fatalf("convertFile failed: %v", err)
	}
	if row.Result.MergedFile == "" || len(row.Result.LineFiles) != 0 {
		t.Errorf("unexpected result %+v", row.Result)
	}
	if ids := a.repo.IDs(); len(ids) != 0 {
		t.Errorf("watched batches should not accumulate, got %v", ids)
	}
}

func TestApp_CacheIsScopedPerEngine(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;rate=24000","data":"AAECAwQFBgc="}}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	c := mockConfig(t)
	p := writeInput(t, t.TempDir(), "shared.txt", "Same line for both engines.\n")

	mock, err := newApp(c)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	if _, err := mock.convertFile(context.Background(), p); err != nil {
		t.Fatalf("mock convertFile failed: %v", err)
	}
	mock.close()

	c.Engine = "gemini"
	c.Gemini.APIKey = "secret"
	c.Gemini.BaseURL = srv.URL
	c.Gemini.RequestsPerMinute = 10000
	gemini, err := newApp(c)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer gemini.close()

	row, err := gemini.convertFile(context.Background(), p)
	if err != nil {
		t.Fatalf("gemini convertFile failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected the gemini API to be called once, got %d", calls.Load())
	}
	if got := string(row.Batch.Lines[0].AudioData); got != "AAECAwQFBgc=" {
		t.Errorf("expected the gemini payload, got %d bytes", len(got))
	}
}
