package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readReport(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	conf := ReporterConfig{Destination: filepath.Join(dir, "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	logFile := filepath.Join(dir, "run.log")
	r.Store("final.log", logFile)
	r.Store("missing.log", filepath.Join(dir, "absent.log"))
	r.StoreData("chapters/chapter-10.txt", []byte("ten"))
	r.StoreData("chapters/chapter-2.txt", []byte("two"))
	r.StoreData("chapters/chapter-2.txt", []byte("two again"))
	r.StoreSource("/some/where/My Novel.docx", []byte("PK"))

	// file content at close time is reported
	if err := os.WriteFile(logFile, []byte("log line"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.Name() != conf.Destination {
		t.Errorf("Name() = %q", r.Name())
	}

	files := readReport(t, conf.Destination)
	if files["final.log"] != "log line" || files["chapters/chapter-2.txt"] != "two" || files["source/My Novel.docx"] != "PK" {
		t.Errorf("report files = %v", files)
	}
	if _, ok := files["missing.log"]; ok {
		t.Error("absent files must be skipped")
	}
	if len(files) != 6 {
		t.Errorf("report has %d files", len(files))
	}

	manifest := files["MANIFEST"]
	if strings.Index(manifest, "chapter-2.txt") > strings.Index(manifest, "chapter-10.txt") {
		t.Errorf("manifest is not in natural order:\n%s", manifest)
	}
}

func TestReportStoreConflict(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	r.Store("a", "/x")
	r.Store("a", "/x")
	defer func() {
		if recover() == nil {
			t.Error("expected panic on overwrite")
		}
	}()
	r.Store("a", "/y")
}

func TestReportClose_NilReport(t *testing.T) {
	var r *Report
	r.Store("a", "b")
	r.StoreData("a", nil)
	r.StoreSource("a", nil)
	if err := r.Close(); err != nil {
		t.Errorf("nil Report.Close() error = %v", err)
	}
	if r.Name() != "" {
		t.Errorf("nil Report.Name() = %q", r.Name())
	}
}
