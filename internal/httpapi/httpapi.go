// Package httpapi implements the daemon's web surface: the rule-file
// index page, the setActive/stop actions, and a server-sent events
// status stream, per spec.md §6's "HTTP surface" and SPEC_FULL.md's
// supplemental features #3-#5. Routing and SSE follow
// src/api/api.go's idiom in the teacher repo (chi.Router,
// eventsource.DefaultSettings/htEvents), adapted from a player/filter
// API surface to a rule-file/status one.
package httpapi

import (
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antage/eventsource"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/kungpfui/cantatadyn/internal/cantata"
	"github.com/kungpfui/cantatadyn/internal/status"
	"github.com/kungpfui/cantatadyn/internal/util"
)

// Commander is the second, HTTP-owned MPD connection used to inject
// control commands, per spec.md §5: the HTTP task never touches the
// dynamizer's own connection.
type Commander interface {
	SendMessage(channel, payload string) error
}

// controlChannel is the inbound pub/sub channel the dynamizer subscribes
// to in server mode.
const controlChannel = "cantata-dynamic-in"

// Server renders the rule-management index page and relays control
// actions through a dedicated MPD connection.
type Server struct {
	RulesDir   string
	ActiveLink string
	Status     *status.Facade
	Conn       Commander
	Events     *util.Emitter
	FaviconDir string
}

// InitRouter mounts every route onto r, following the teacher's
// "small InitRouter, one sub-route per concern" layout.
func (s *Server) InitRouter(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(compressMiddleware)
		r.Get("/", s.index)
		r.Get("/setActive", s.setActive)
		r.Post("/stop", s.stop)
		r.Get("/favicon.ico", s.favicon)
	})
	r.Mount("/events", s.sseHandler())
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><title>cantatadyn</title></head><body>
<h1>Rule files</h1>
<ul>
{{range .Rules}}<li>{{if .Active}}<b>{{.Name}}</b>{{else}}<a href="/setActive?name={{.Name}}">{{.Name}}</a>{{end}}</li>
{{end}}
</ul>
<form method="post" action="/stop"><button type="submit">Stop</button></form>
</body></html>`))

type ruleRow struct {
	Name   string
	Active bool
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.RulesDir)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	active := activeName(s.ActiveLink)

	var rows []ruleRow
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".rules") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".rules")
		rows = append(rows, ruleRow{Name: name, Active: name == active})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct{ Rules []ruleRow }{rows}); err != nil {
		log.WithError(err).Error("httpapi: failed to render index")
	}
}

// setActive injects a setActive control message through the
// HTTP-owned connection, sleeps ~1.5s for the dynamizer to act on it,
// and redirects back to the index, per SPEC_FULL.md supplemental
// feature #5.
func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	payload := fmt.Sprintf("setActive:http:%s:1", cantata.Encode(name))
	if err := s.Conn.SendMessage(controlChannel, payload); err != nil {
		log.WithError(err).Error("httpapi: failed to send setActive command")
	}
	time.Sleep(1500 * time.Millisecond)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// stop injects a control:stop message, per the same pattern.
func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	payload := "control:http:stop:1"
	if err := s.Conn.SendMessage(controlChannel, payload); err != nil {
		log.WithError(err).Error("httpapi: failed to send stop command")
	}
	time.Sleep(1500 * time.Millisecond)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) favicon(w http.ResponseWriter, r *http.Request) {
	if s.FaviconDir == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.FaviconDir, "favicon.ico"))
}

// sseHandler pushes PlayerStatus transitions to the web UI, modeled on
// htEvents in src/api/api.go.
func (s *Server) sseHandler() http.Handler {
	conf := eventsource.DefaultSettings()
	es := eventsource.New(conf, func(r *http.Request) [][]byte {
		return [][]byte{[]byte("X-Accel-Buffering: no")}
	})

	ch := s.Events.Listen()
	go func() {
		id := 0
		for event := range ch {
			snap, ok := event.(status.Snapshot)
			if !ok {
				continue
			}
			id++
			msg, err := json.Marshal(map[string]interface{}{
				"state":      snap.State,
				"dynamic":    snap.Dynamic,
				"timestamp":  snap.Timestamp,
				"activeName": snap.ActiveName,
			})
			if err != nil {
				log.WithError(err).Error("httpapi: failed to marshal status event")
				continue
			}
			es.SendEventMessage(string(msg), "status", strconv.Itoa(id))
		}
	}()
	return es
}

// WriteError writes a plain-text error to the client, matching
// src/api/api.go's WriteError.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	log.Errorf("httpapi: error serving %s: %v", r.RemoteAddr, err)
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte(err.Error()))
}

func activeName(activeLink string) string {
	target, err := os.Readlink(activeLink)
	if err != nil {
		return ""
	}
	base := filepath.Base(target)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// compressMiddleware negotiates gzip/deflate for text responses over
// 512 bytes, per SPEC_FULL.md supplemental feature #4.
func compressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &responseBuffer{header: http.Header{}}
		next.ServeHTTP(buf, r)

		body := buf.body
		if len(body) <= 512 {
			copyHeader(w.Header(), buf.header)
			w.WriteHeader(buf.status())
			w.Write(body)
			return
		}

		accept := r.Header.Get("Accept-Encoding")
		copyHeader(w.Header(), buf.header)
		switch {
		case strings.Contains(accept, "gzip"):
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Del("Content-Length")
			w.WriteHeader(buf.status())
			gz := gzip.NewWriter(w)
			defer gz.Close()
			gz.Write(body)
		case strings.Contains(accept, "deflate"):
			w.Header().Set("Content-Encoding", "deflate")
			w.Header().Del("Content-Length")
			w.WriteHeader(buf.status())
			fw, _ := flate.NewWriter(w, flate.DefaultCompression)
			defer fw.Close()
			fw.Write(body)
		default:
			w.WriteHeader(buf.status())
			w.Write(body)
		}
	})
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// responseBuffer captures a handler's output so compressMiddleware can
// decide on encoding after seeing the full body size.
type responseBuffer struct {
	header     http.Header
	body       []byte
	statusCode int
}

func (b *responseBuffer) Header() http.Header { return b.header }

func (b *responseBuffer) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *responseBuffer) WriteHeader(code int) { b.statusCode = code }

func (b *responseBuffer) status() int {
	if b.statusCode == 0 {
		return http.StatusOK
	}
	return b.statusCode
}

var _ io.Writer = (*responseBuffer)(nil)
