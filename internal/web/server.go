// Package web serves the audit artifacts of a finished run for review: the
// run summary, candidate-source listings and the uncharacterized-flow
// reports, browsable without downloading the output directory.
package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server is a read-only browser over one run's audit directory.
type Server struct {
	addr       string
	dir        string
	log        *zap.SugaredLogger
	router     *mux.Router
	httpServer *http.Server
}

// NewServer creates a server over the given audit directory.
func NewServer(log *zap.SugaredLogger, addr, dir string) (*Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("audit directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("audit directory %s is not a directory", dir)
	}

	s := &Server{addr: addr, dir: dir, log: log}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/files", s.handleListFiles).Methods("GET")
	s.router.HandleFunc("/files/{name}", s.handleFile).Methods("GET")
	s.router.HandleFunc("/files/{name}/raw", s.handleRawFile).Methods("GET")
}

// Start runs the server until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Audit browser listening on %s, serving %s", s.addr, s.dir)
		if err := s.httpServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("audit browser: %w", err)
	case sig := <-sigCh:
		s.log.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type fileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// listFiles returns the CSV artifacts of the audit directory, sorted by name.
func (s *Server) listFiles() ([]fileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().Format(time.RFC3339),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// safePath resolves a requested file name inside the audit directory,
// rejecting traversal.
func (s *Server) safePath(name string) (string, bool) {
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".csv") {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := s.listFiles()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><title>Run audit</title></head><body>
<h1>Run audit artifacts</h1>
<ul>
{{range .}}<li><a href="/files/{{.Name}}">{{.Name}}</a> ({{.Size}} bytes, {{.Modified}})</li>
{{end}}</ul>
</body></html>`))

var fileTemplate = template.Must(template.New("file").Parse(`<!DOCTYPE html>
<html><head><title>{{.Name}}</title></head><body>
<p><a href="/">back</a> | <a href="/files/{{.Name}}/raw">raw</a></p>
<h1>{{.Name}}</h1>
<table border="1" cellspacing="0">
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
</body></html>`))

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	files, err := s.listFiles()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := indexTemplate.Execute(w, files); err != nil {
		s.log.Errorf("render index: %v", err)
	}
}

const maxRenderedRows = 5000

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path, ok := s.safePath(name)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '|'
	reader.FieldsPerRecord = -1
	var rows [][]string
	for len(rows) < maxRenderedRows {
		row, err := reader.Read()
		if err != nil {
			break
		}
		rows = append(rows, row)
	}

	data := struct {
		Name string
		Rows [][]string
	}{Name: name, Rows: rows}
	if err := fileTemplate.Execute(w, data); err != nil {
		s.log.Errorf("render %s: %v", name, err)
	}
}

func (s *Server) handleRawFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path, ok := s.safePath(name)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, path)
}
