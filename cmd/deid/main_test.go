package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clinical-deid/internal/config"
)

// captureStdout redirects os.Stdout to a pipe for the duration of fn,
// then returns everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	fn()

	if closeErr := w.Close(); closeErr != nil {
		t.Fatalf("pipe write close: %v", closeErr)
	}
	os.Stdout = old

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read pipe: %v", err)
	}
	return string(out)
}

func TestPrintBanner_ContainsExpectedFields(t *testing.T) {
	cfg := &config.Config{
		Port:           8090,
		ManagementPort: 8091,
		Oracle:         config.OracleOllama,
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "qwen2.5:3b",
		MaskStrategy:   "offset",
	}

	out := captureStdout(t, func() { printBanner(cfg) })

	for _, want := range []string{"8090", "8091", "localhost:11434", "qwen2.5:3b", "offset", "(memory)", "http://localhost:8090/v1/process"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in banner output, got:\n%s", want, out)
		}
	}
}

func TestPrintBanner_TLSScheme(t *testing.T) {
	cfg := &config.Config{Port: 8443, ManagementPort: 8091, Oracle: config.OracleRules, UseTLS: true, CacheFile: "/var/lib/deid/spans.db"}
	out := captureStdout(t, func() { printBanner(cfg) })

	if !strings.Contains(out, "https://localhost:8443") {
		t.Errorf("expected https URL in banner, got:\n%s", out)
	}
	if !strings.Contains(out, "/var/lib/deid/spans.db") {
		t.Errorf("expected cache path in banner, got:\n%s", out)
	}
}

// maskEnv isolates runMask from any config in the working directory.
func maskEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("ORACLE", "rules")
	t.Setenv("MASK_STRATEGY", "")
	t.Setenv("TERMS_FILE", "")
	t.Setenv("CACHE_FILE", "")
	t.Setenv("PROTECT_TERMS", "")
	return dir
}

func writeNote(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const scenario = "Patient John Smith, DOB 01/02/1980, visited Chennai Hospital for fever and had an MRI on 5 May 2023."

func TestMask_WritesArtifacts(t *testing.T) {
	dir := maskEnv(t)
	in := writeNote(t, dir, scenario)
	outPath := filepath.Join(dir, "masked.txt")
	csvPath := filepath.Join(dir, "entities.csv")

	var stdout, stderr bytes.Buffer
	err := runMask(context.Background(), in, maskOptions{out: outPath, csv: csvPath}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("runMask: %v", err)
	}

	masked, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "Patient [NAME], DOB [DATE], visited [ADDRESS] Hospital for fever and had an MRI on [DATE]."
	if string(masked) != want {
		t.Errorf("masked file:\n got %q\nwant %q", masked, want)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty with --out, got %q", stdout.String())
	}

	csv, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	wantCSV := "Entity,Type,Count\nMRI,LAB_TEST,1\nMRI,PROCEDURE,1\nfever,SYMPTOM,1\n"
	if string(csv) != wantCSV {
		t.Errorf("csv:\n got %q\nwant %q", csv, wantCSV)
	}

	for _, want := range []string{"PHI placeholders: 4", "dates 2", "Entities: 3", "SYMPTOM"} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, stderr.String())
		}
	}
}

func TestMask_StdoutAndStrategyFlag(t *testing.T) {
	dir := maskEnv(t)
	in := writeNote(t, dir, "Dr Ravi saw Ravi Kumar.")

	var stdout, stderr bytes.Buffer
	if err := runMask(context.Background(), in, maskOptions{strategy: "surface"}, &stdout, &stderr); err != nil {
		t.Fatalf("runMask: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "Dr [NAME] saw [NAME] Kumar.") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestMask_ColorKeepsText(t *testing.T) {
	dir := maskEnv(t)
	in := writeNote(t, dir, "Complains of fever.")

	var stdout, stderr bytes.Buffer
	if err := runMask(context.Background(), in, maskOptions{color: true}, &stdout, &stderr); err != nil {
		t.Fatalf("runMask: %v", err)
	}
	for _, want := range []string{"Complains of", "fever", "SYMPTOM"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("colored output missing %q: %q", want, stdout.String())
		}
	}
}

func TestMask_Errors(t *testing.T) {
	dir := maskEnv(t)
	latin1 := filepath.Join(dir, "latin1.txt")
	if err := os.WriteFile(latin1, []byte("Dr M\xfcller"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		opts maskOptions
	}{
		{"missing file", filepath.Join(dir, "nope.txt"), maskOptions{}},
		{"invalid encoding", latin1, maskOptions{}},
		{"bad strategy", latin1, maskOptions{strategy: "random"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := runMask(context.Background(), tt.path, tt.opts, &stdout, &stderr); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "mask"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
