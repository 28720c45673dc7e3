package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/shpitdev/pds-validator/internal/mockupstream"
)

func main() {
	addr := defaultString("MOCK_UPSTREAM_ADDR", ":8080")
	docsDir := defaultString("MOCK_UPSTREAM_DOCS_DIR", "")
	reply := defaultString("MOCK_UPSTREAM_REPLY", "")
	searchKey := defaultString("MOCK_UPSTREAM_SEARCH_KEY", "")
	modelKey := defaultString("MOCK_UPSTREAM_MODEL_KEY", "")

	fs := flag.NewFlagSet("mock-upstream", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&docsDir, "docs-dir", docsDir, "Directory of PDFs named <product name>.pdf; each becomes a search hit for that product")
	fs.StringVar(&reply, "reply", reply, "Fixed chat completion reply (default: a fully valid score)")
	fs.StringVar(&searchKey, "search-key", searchKey, "Require this key on search requests")
	fs.StringVar(&modelKey, "model-key", modelKey, "Require this bearer token on chat completion requests")
	_ = fs.Parse(os.Args[1:])

	srv := mockupstream.New()
	srv.RequireSearchKey(searchKey)
	srv.RequireModelKey(modelKey)
	if reply != "" {
		srv.SetReply(func(string, string) string { return reply })
	}

	n, err := loadDocs(srv, docsDir)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load docs: %v\n", err)
		os.Exit(2)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-upstream listening on %s (docs=%d from %q)\n", addr, n, docsDir)
	_, _ = fmt.Fprintf(os.Stdout, "  PDSV_SEARCH_BASE_URL=http://<host>%s  PDSV_MODEL_BASE_URL=http://<host>%s/v1\n", addr, addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func loadDocs(srv *mockupstream.Server, dir string) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		product := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		srv.AddProduct(product, mockupstream.Document{Filename: e.Name(), Body: b})
		n++
	}
	return n, nil
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
