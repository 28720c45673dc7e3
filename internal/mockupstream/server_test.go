package mockupstream_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shpitdev/pds-validator/internal/mockupstream"
)

func TestServer_SearchAndDocs(t *testing.T) {
	t.Parallel()

	srv := mockupstream.New()
	srv.RequireSearchKey("search-key")
	pdf := mockupstream.BuildPDF([]string{"Alpha Fund", "Product Disclosure Statement"})
	srv.AddProduct("Alpha Fund", mockupstream.Document{Filename: "alpha.pdf", Body: pdf})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("rejects bad key", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/customsearch/v1?key=wrong&q=x")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status=%d want 403", resp.StatusCode)
		}
	})

	t.Run("unknown product has no items", func(t *testing.T) {
		q := url.Values{"key": {"search-key"}, "q": {`"Nope" "Product Disclosure Statement"`}}
		var body map[string]any
		getJSON(t, ts.URL+"/customsearch/v1?"+q.Encode(), &body)
		if _, ok := body["items"]; ok {
			t.Fatalf("expected no items, got %#v", body)
		}
	})

	t.Run("known product links to served document", func(t *testing.T) {
		q := url.Values{"key": {"search-key"}, "q": {`"Alpha Fund" "Product Disclosure Statement" filetype:pdf`}}
		var body struct {
			Items []struct {
				Link string `json:"link"`
			} `json:"items"`
		}
		getJSON(t, ts.URL+"/customsearch/v1?"+q.Encode(), &body)
		if len(body.Items) != 1 || body.Items[0].Link != ts.URL+"/docs/alpha.pdf" {
			t.Fatalf("unexpected items: %#v", body.Items)
		}

		resp, err := http.Get(body.Items[0].Link)
		if err != nil {
			t.Fatalf("get doc: %v", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
			t.Fatalf("content-type=%q", ct)
		}
		b, _ := io.ReadAll(resp.Body)
		if !bytes.Equal(b, pdf) {
			t.Fatalf("served document differs from registered one")
		}
	})

	if got := len(srv.CallsTo("/customsearch/v1")); got != 3 {
		t.Fatalf("expected 3 search calls, got %d", got)
	}
}

func TestServer_ChatCompletions(t *testing.T) {
	t.Parallel()

	srv := mockupstream.New()
	srv.RequireModelKey("model-key")
	srv.SetReply(func(system, user string) string {
		if !strings.Contains(system, "rubric") {
			return "0 | missing rubric"
		}
		return "75 | Old date (-25) | PDS date: 15 March 2022 / " + user
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	payload := `{"model":"m","messages":[{"role":"system","content":"rubric"},{"role":"user","content":"page text"}]}`

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat/completions", strings.NewReader(payload))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401 without bearer", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/v1/chat/completions", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer model-key")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Choices) != 1 || body.Choices[0].Message.Content != "75 | Old date (-25) | PDS date: 15 March 2022 / page text" {
		t.Fatalf("unexpected choices: %#v", body.Choices)
	}
}

func getJSON(t *testing.T, u string, v any) {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("get %s: %v", u, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", u, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", u, err)
	}
}
