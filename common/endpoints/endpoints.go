package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bootdash/cloudops/common/stats"
)

func NewTwitterServer(addr string, stats stats.StatsReceiver) *TwitterServer {
	s := &TwitterServer{
		Addr:  addr,
		Stats: stats,
		mux:   http.NewServeMux(),
		views: make(map[string]View),
	}
	s.mux.HandleFunc("/", s.helpHandler)
	s.mux.HandleFunc("/health", healthHandler)
	s.mux.HandleFunc("/admin/metrics.json", s.statsHandler)
	return s
}

// View produces a JSON-marshalable snapshot of some live state.
type View func() interface{}

type TwitterServer struct {
	Addr  string
	Stats stats.StatsReceiver

	mux   *http.ServeMux
	mu    sync.Mutex
	views map[string]View
}

// AddView serves view as JSON at path.
func (s *TwitterServer) AddView(path string, view View) {
	s.mu.Lock()
	s.views[path] = view
	s.mu.Unlock()
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, view(), r.URL.Query().Get("pretty") == "true")
	})
}

func (s *TwitterServer) Handler() http.Handler { return s.mux }

// Serve blocks serving on Addr.
func (s *TwitterServer) Serve() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ln)
}

func (s *TwitterServer) ServeListener(ln net.Listener) error {
	log.Infof("Serving http & stats on %s", ln.Addr())
	server := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	return server.Serve(ln)
}

func (s *TwitterServer) helpHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	paths := []string{"/health", "/admin/metrics.json"}
	for p := range s.views {
		paths = append(paths, p)
	}
	s.mu.Unlock()
	sort.Strings(paths[2:])
	http.Error(w, fmt.Sprintf("Common paths: %q", paths), http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *TwitterServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
}

func writeJSON(w http.ResponseWriter, v interface{}, pretty bool) {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

type StatScope string

// MakeStatsReceiver returns a latched finagle receiver under scope, reporting
// latencies in milliseconds. latch <= 0 disables latching; call stop to end it.
func MakeStatsReceiver(scope StatScope, latch time.Duration) (s stats.StatsReceiver, stop func()) {
	s, stop = stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry, latch)
	return s.Scope(string(scope)).Precision(time.Millisecond), stop
}
