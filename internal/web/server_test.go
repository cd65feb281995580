package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lcatools/ecomatrix/internal/logger"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	content := "a|b\n1|2\n"
	if err := os.WriteFile(filepath.Join(dir, "run_summary.csv"),
		[]byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewServer(logger.Nop(), ":0", dir)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, dir
}

func TestListFilesEndpoint(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest("GET", "/api/files", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var files []fileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(files) != 1 || files[0].Name != "run_summary.csv" {
		t.Errorf("files = %+v", files)
	}
}

func TestFileRendered(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest("GET", "/files/run_summary.csv", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<td>a</td>") || !strings.Contains(body, "<td>2</td>") {
		t.Errorf("rendered table missing cells: %s", body)
	}
}

func TestTraversalRejected(t *testing.T) {
	s, _ := testServer(t)
	for _, name := range []string{"..%2F..%2Fetc%2Fpasswd", "notcsv.txt"} {
		req := httptest.NewRequest("GET", "/files/"+name, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET /files/%s = %d, want 404", name, rec.Code)
		}
	}
}

func TestMissingDirRejected(t *testing.T) {
	if _, err := NewServer(logger.Nop(), ":0", "/does/not/exist"); err == nil {
		t.Error("NewServer accepted a missing audit directory")
	}
}
