// Package monitoring serves the live state of a trace session over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/tasktrace/archive"
	"github.com/sarchlab/tasktrace/trace"
)

const maxProfileSeconds = 30

// Monitor turns a trace session into a server that reports its progress.
type Monitor struct {
	state       *trace.State
	portNumber  int
	openBrowser bool
	started     time.Time
	log         zerolog.Logger

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a monitor of the session.
func NewMonitor(s *trace.State) *Monitor {
	return &Monitor{
		state:   s,
		started: time.Now(),
		log:     s.Logger().With().Str("component", "monitor").Logger(),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// replaced by a random one.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.log.Warn().Int("port", portNumber).
			Msg("port not allowed for the monitor, using a random port")

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser sets whether the monitor opens in a browser once started.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// Router returns the routes the monitor serves.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/session", m.session)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/locations", m.listLocations)
	r.HandleFunc("/api/location/{ref}", m.locationDetails)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/", http.RedirectHandler("/api/session", http.StatusFound))

	return r
}

// StartServer starts serving in the background and returns the address of
// the monitor.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring trace with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("monitor stopped")
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.log.Warn().Err(err).Msg("cannot open browser")
		}
	}

	return url, nil
}

// Stop shuts the server down.
func (m *Monitor) Stop() error {
	if m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return m.server.Shutdown(ctx)
}

type sessionRsp struct {
	Name       string  `json:"name"`
	Dir        string  `json:"dir"`
	EventModel string  `json:"event_model"`
	Backend    string  `json:"backend"`
	Finalised  bool    `json:"finalised"`
	Uptime     float64 `json:"uptime"`
}

func (m *Monitor) session(w http.ResponseWriter, _ *http.Request) {
	opts := m.state.Options()

	m.writeJSON(w, sessionRsp{
		Name:       m.state.Name(),
		Dir:        m.state.Dir(),
		EventModel: string(opts.EventModel),
		Backend:    string(opts.Backend),
		Finalised:  m.state.IsFinalised(),
		Uptime:     time.Since(m.started).Seconds(),
	})
}

type statsRsp struct {
	LocationsLive      int64  `json:"locations_live"`
	RegionsLive        int64  `json:"regions_live"`
	DefinitionsWritten uint64 `json:"definitions_written"`
	EventsWritten      uint64 `json:"events_written"`
	StringsInterned    int    `json:"strings_interned"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	s := m.state.Stats()

	m.writeJSON(w, statsRsp(s))
}

type locationRsp struct {
	ID         uint64 `json:"id"`
	Ref        uint64 `json:"ref"`
	ThreadType string `json:"thread_type"`
	Events     uint64 `json:"events"`
	Depth      int64  `json:"depth"`
}

func (m *Monitor) listLocations(w http.ResponseWriter, _ *http.Request) {
	infos := m.state.Locations()

	rsp := make([]locationRsp, 0, len(infos))
	for _, info := range infos {
		rsp = append(rsp, locationRsp{
			ID:         uint64(info.ID),
			Ref:        uint64(info.Ref),
			ThreadType: info.ThreadType.String(),
			Events:     info.Events,
			Depth:      info.Depth,
		})
	}

	m.writeJSON(w, rsp)
}

// locationDetails serializes a snapshot of one location. The optional field
// query selects a dot-separated path into it.
func (m *Monitor) locationDetails(w http.ResponseWriter, r *http.Request) {
	ref, err := strconv.ParseUint(mux.Vars(r)["ref"], 10, 64)
	if err != nil {
		http.Error(w, "invalid location ref", http.StatusBadRequest)
		return
	}

	info, found := m.findLocation(archive.LocationRef(ref))
	if !found {
		http.Error(w, "location not found", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&info)
	serializer.SetMaxDepth(1)

	if field := r.URL.Query().Get("field"); field != "" {
		if err := serializer.SetEntryPoint(strings.Split(field, ".")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := serializer.Serialize(w); err != nil {
		m.log.Error().Err(err).Msg("cannot serialize location")
	}
}

func (m *Monitor) findLocation(ref archive.LocationRef) (trace.LocationInfo, bool) {
	for _, info := range m.state.Locations() {
		if info.Ref == ref {
			return info, true
		}
	}

	return trace.LocationInfo{}, false
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.fail(w, err)
		return
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		m.fail(w, err)
		return
	}

	memory, err := p.MemoryInfo()
	if err != nil {
		m.fail(w, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

// collectProfile samples the CPU for the number of seconds in the seconds
// query, one by default.
func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	seconds := 1

	if s := r.URL.Query().Get("seconds"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxProfileSeconds {
			http.Error(w, "invalid seconds", http.StatusBadRequest)
			return
		}

		seconds = n
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Duration(seconds) * time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.fail(w, err)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		m.log.Debug().Err(err).Msg("cannot write response")
	}
}

func (m *Monitor) fail(w http.ResponseWriter, err error) {
	m.log.Error().Err(err).Msg("monitor request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
