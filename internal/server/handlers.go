package server

import (
	"encoding/json"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/stackops/stackops/internal/version"
)

// submitResponse is returned by every job trigger. A dropped submission is
// not an error: accepted is false and the status code is still 200.
type submitResponse struct {
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func dryRun(r *http.Request) bool {
	return r.URL.Query().Get("dry") == "1"
}

func (s *Server) writeSubmit(w http.ResponseWriter, r *http.Request, accepted bool) {
	if !accepted {
		s.logger.Info().Str("path", r.URL.Path).Msg("submission dropped, job already running")
	}
	writeJSON(w, http.StatusOK, submitResponse{Status: "ok", Accepted: accepted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	s.writeSubmit(w, r, s.jobs.SubmitBackup(dryRun(r)))
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	s.writeSubmit(w, r, s.jobs.SubmitRestore(dryRun(r)))
}

func (s *Server) handleFstab(w http.ResponseWriter, r *http.Request) {
	s.writeSubmit(w, r, s.jobs.SubmitFstabSetup())
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.ClearLog(); err != nil {
		s.logger.Error().Err(err).Msg("clearing log")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Status()
	if err != nil {
		// State is still meaningful without the tail.
		s.logger.Warn().Err(err).Msg("reading log tail")
	}
	writeJSON(w, http.StatusOK, st)
}

// handleLogStream sends each job log line as a websocket text frame until
// the client goes away.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOriginPatterns(r),
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	lines, unsubscribe := s.stream.Subscribe()
	defer unsubscribe()

	// The client never sends anything; CloseRead handles its close frame.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
				return
			}
		}
	}
}
