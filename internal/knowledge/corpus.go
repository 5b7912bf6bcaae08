package knowledge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

// Document is one entry of the static knowledge corpus.
type Document struct {
	DocID    string
	Title    string
	Body     string
	URL      string
	Lang     session.Language
	Category string
	Tags     []string
}

// rawDocument mirrors the line-delimited JSON corpus format.
type rawDocument struct {
	DocID    string   `json:"doc_id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Anchors  []string `json:"anchors"`
	Lang     string   `json:"lang"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (r rawDocument) toDocument() Document {
	doc := Document{
		DocID:    r.DocID,
		Title:    r.Title,
		Body:     r.Body,
		Lang:     session.ParseLanguage(r.Lang),
		Category: r.Category,
		Tags:     r.Tags,
	}
	if len(r.Anchors) > 0 {
		doc.URL = r.Anchors[0]
	}
	return doc
}

// Source loads the corpus once. The corpus is immutable for the process
// lifetime.
type Source interface {
	Load(ctx context.Context) ([]Document, error)
}

// FileSource reads a JSONL corpus from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) ([]Document, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: failed to open corpus %s: %w", s.Path, err)
	}
	defer f.Close()
	return parseJSONL(f)
}

// HTTPSource fetches a JSONL corpus over HTTP(S).
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Load(ctx context.Context) ([]Document, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge: failed to build corpus request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: failed to fetch corpus: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge: corpus fetch returned status %d", resp.StatusCode)
	}
	return parseJSONL(resp.Body)
}

// StaticSource serves an in-memory corpus, used by tests and seeded deploys.
type StaticSource struct {
	Documents []Document
	Err       error
}

func (s StaticSource) Load(ctx context.Context) ([]Document, error) {
	return s.Documents, s.Err
}

func parseJSONL(r io.Reader) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var raw rawDocument
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("knowledge: malformed corpus line %d: %w", line, err)
		}
		docs = append(docs, raw.toDocument())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: failed to read corpus: %w", err)
	}
	return docs, nil
}
