package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Server exposes the agent's state on 127.0.0.1:<port>/health.
type Server struct {
	port          string
	running       int32
	authenticated int32
	pingOk        int32

	mu        sync.Mutex
	state     string
	lastCycle time.Time
}

func New(port string) *Server {
	return &Server{port: port}
}

func (s *Server) SetRunning(ok bool) { atomic.StoreInt32(&s.running, b2i(ok)) }
func (s *Server) SetAuthenticated(ok bool) { atomic.StoreInt32(&s.authenticated, b2i(ok)) }
func (s *Server) SetPingHealthy(ok bool) { atomic.StoreInt32(&s.pingOk, b2i(ok)) }

func (s *Server) SetState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Server) SetLastCycle(t time.Time) {
	s.mu.Lock()
	s.lastCycle = t
	s.mu.Unlock()
}

// Handler returns the /health handler without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) Serve() error {
	return http.ListenAndServe("127.0.0.1:"+s.port, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	state, last := s.state, s.lastCycle
	s.mu.Unlock()

	resp := map[string]any{
		"running":       atomic.LoadInt32(&s.running) == 1,
		"authenticated": atomic.LoadInt32(&s.authenticated) == 1,
		"ping_ok":       atomic.LoadInt32(&s.pingOk) == 1,
		"state":         state,
	}
	if !last.IsZero() {
		resp["last_cycle"] = last.UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func b2i(ok bool) int32 {
	if ok {
		return 1
	}
	return 0
}
