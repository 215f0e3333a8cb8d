// Package statusapi exposes a tiny read-only loopback HTTP endpoint for
// daemon introspection, the way the teacher's internal/server wires
// gorilla/mux for its dashboard. This is deliberately narrower: two GET
// routes, no control-plane mutation (that happens over the Unix control
// socket, not HTTP).
package statusapi

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cryochamber/cryod/internal/state"
)

// statusResponse is the JSON body of GET /status.
type statusResponse struct {
	Dir            string     `json:"dir"`
	SessionNumber  uint32     `json:"session_number"`
	RetryCount     uint32     `json:"retry_count"`
	ProviderIndex  uint32     `json:"provider_index"`
	NextWake       *time.Time `json:"next_wake,omitempty"`
	LastReportTime *time.Time `json:"last_report_time,omitempty"`
}

// Server is a loopback-only HTTP server reporting one supervised
// directory's current state.
type Server struct {
	dir    string
	states *state.Store
	srv    *http.Server
	ln     net.Listener
}

// New builds a Server bound to dir's state; it does not start listening.
func New(dir string) *Server {
	return &Server{dir: dir, states: state.NewStore(dir)}
}

// Start binds a loopback TCP listener on an OS-assigned port and begins
// serving in the background. Returns the address it bound to.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.ln = ln

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.srv = &http.Server{Handler: r}

	go s.srv.Serve(ln)
	return ln.Addr().String(), nil
}

// Close shuts down the listener.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.states.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := statusResponse{
		Dir:            s.dir,
		SessionNumber:  st.SessionNumber,
		RetryCount:     st.RetryCount,
		ProviderIndex:  st.ProviderIndex,
		NextWake:       st.NextWake,
		LastReportTime: st.LastReportTime,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
