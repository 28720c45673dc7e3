// Package mockupstream serves a fake web-search API, PDF host and
// chat-completions endpoint for tests and local smoke runs.
package mockupstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	Query  url.Values
}

// Document is a file served under /docs/.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReplyFunc produces the assistant message for one chat completion.
type ReplyFunc func(system, user string) string

// Server implements the minimal upstream surface the validator calls.
type Server struct {
	mu    sync.Mutex
	calls []Call

	searchKey string
	modelKey  string

	// products maps an exact product name to the document its search returns.
	products map[string]Document
	docs     map[string]Document
	reply    ReplyFunc
}

// New constructs a new mock server.
func New() *Server {
	return &Server{
		products: make(map[string]Document),
		docs:     make(map[string]Document),
		reply: func(string, string) string {
			return "100 | [blank] | PDS date: 1 July 2024"
		},
	}
}

// RequireSearchKey enforces the key query parameter on search requests.
// If key is empty, it is not enforced.
func (s *Server) RequireSearchKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchKey = strings.TrimSpace(key)
}

// RequireModelKey enforces a bearer token on chat completion requests.
// If key is empty, it is not enforced.
func (s *Server) RequireModelKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelKey = strings.TrimSpace(key)
}

// AddProduct makes searches for productName return doc, and serves doc.
func (s *Server) AddProduct(productName string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ContentType == "" {
		doc.ContentType = "application/pdf"
	}
	s.products[productName] = doc
	s.docs[doc.Filename] = doc
}

// SetReply overrides how chat completions are answered.
func (s *Server) SetReply(fn ReplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

// Calls returns a copy of all recorded calls.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo returns the recorded calls whose path starts with prefix.
func (s *Server) CallsTo(prefix string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/customsearch/v1", s.handleSearch)
	mux.HandleFunc("/docs/", s.handleDoc)
	mux.HandleFunc("/v1/chat/completions", s.handleChat)
	return s.record(mux)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type searchItem struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Mime  string `json:"mime"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()

	s.mu.Lock()
	wantKey := s.searchKey
	s.mu.Unlock()
	if wantKey != "" && q.Get("key") != wantKey {
		writeError(w, http.StatusForbidden, "API key not valid. Please pass a valid API key.")
		return
	}

	doc, ok := s.lookupProduct(q.Get("q"))
	resp := map[string]any{
		"kind": "customsearch#search",
	}
	if ok {
		base := "http://" + r.Host
		resp["items"] = []searchItem{{
			Title: doc.Filename,
			Link:  base + "/docs/" + url.PathEscape(doc.Filename),
			Mime:  doc.ContentType,
		}}
	}
	writeJSON(w, http.StatusOK, resp)
}

// lookupProduct matches the first quoted phrase of the query against known products.
func (s *Server) lookupProduct(query string) (Document, bool) {
	name := firstQuoted(query)
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.products[name]
	return doc, ok
}

func firstQuoted(q string) string {
	start := strings.Index(q, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(q[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return q[start+1 : start+1+end]
}

func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/docs/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	doc, ok := s.docs[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.mu.Lock()
	wantKey := s.modelKey
	reply := s.reply
	s.mu.Unlock()
	if wantKey != "" && r.Header.Get("Authorization") != "Bearer "+wantKey {
		writeError(w, http.StatusUnauthorized, "Incorrect API key provided.")
		return
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	var req chatRequest
	if err := json.Unmarshal(b, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": reply(system, user),
			},
		}},
		"usage": map[string]int{
			"prompt_tokens":     len(system+user) / 4,
			"completion_tokens": 12,
			"total_tokens":      len(system+user)/4 + 12,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
		},
	})
}
