package httpmodel_mock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// Server is an in-process model server for testing the httpmodel provider.
type Server struct {
	server *httptest.Server

	mu         sync.Mutex
	labels     []advisory.Label
	intent     advisory.Intent
	transcript advisory.Transcript
	audio      []byte
	status     int
	hits       map[string]int
}

// NewServer creates and starts a mock model server.
func NewServer() *Server {
	s := &Server{status: http.StatusOK, hits: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/classify/image", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Image    []byte `json:"image"`
			CropHint string `json:"crop_hint"`
		}
		if !s.begin(w, r, "image", &req) {
			return
		}
		s.writeJSON(w, map[string]any{"labels": s.snapshot().labels})
	})
	mux.HandleFunc("POST /v1/classify/intent", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text         string `json:"text"`
			LanguageHint string `json:"language_hint"`
		}
		if !s.begin(w, r, "intent", &req) {
			return
		}
		intent := s.snapshot().intent
		if intent.NormalizedText == "" {
			intent.NormalizedText = req.Text
		}
		s.writeJSON(w, intent)
	})
	mux.HandleFunc("POST /v1/transcribe", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Audio []byte `json:"audio"`
		}
		if !s.begin(w, r, "transcribe", &req) {
			return
		}
		s.writeJSON(w, s.snapshot().transcript)
	})
	mux.HandleFunc("POST /v1/synthesize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text     string `json:"text"`
			Language string `json:"language"`
		}
		if !s.begin(w, r, "synthesize", &req) {
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(s.snapshot().audio)
	})

	s.server = httptest.NewServer(mux)
	return s
}

type state struct {
	labels     []advisory.Label
	intent     advisory.Intent
	transcript advisory.Transcript
	audio      []byte
}

func (s *Server) snapshot() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state{labels: s.labels, intent: s.intent, transcript: s.transcript, audio: s.audio}
}

// begin counts the hit, applies the injected status and decodes the body.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, endpoint string, req any) bool {
	s.mu.Lock()
	s.hits[endpoint]++
	status := s.status
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "JSON encoding error", http.StatusInternalServerError)
	}
}

// URL returns the URL of the mock server.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts down the mock server.
func (s *Server) Close() {
	s.server.Close()
}

// SetLabels sets the image classification response.
func (s *Server) SetLabels(labels ...advisory.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = labels
}

// SetIntent sets the intent classification response.
func (s *Server) SetIntent(intent advisory.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intent = intent
}

// SetTranscript sets the transcription response.
func (s *Server) SetTranscript(tr advisory.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = tr
}

// SetAudio sets the speech synthesis response.
func (s *Server) SetAudio(audio []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = audio
}

// SetStatus makes every endpoint answer with status; http.StatusOK restores
// normal responses.
func (s *Server) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits returns how many requests endpoint received.
func (s *Server) Hits(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[endpoint]
}

// WithDefaultValues sets sensible defaults for testing.
func (s *Server) WithDefaultValues() *Server {
	s.SetLabels(advisory.Label{Label: "leaf_blight", Confidence: 0.82}, advisory.Label{Label: "leaf_rot", Confidence: 0.1})
	s.SetIntent(advisory.Intent{Tag: advisory.IntentWeatherQuery, Language: "en", Confidence: 0.9})
	s.SetTranscript(advisory.Transcript{Text: "will it rain", Language: "en", Confidence: 0.9})
	s.SetAudio([]byte("ID3"))
	return s
}
