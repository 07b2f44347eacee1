package vectorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	sharedhttp "github.com/pipelineforge/pipelineforge/pkg/shared/http"
)

// Config configures an HTTP-backed vector store client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient talks to a ChromaDB-shaped REST API: collections under
// /api/v1/collections, documents under
// /api/v1/collections/{handle}/{add,get,update,delete,count}.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPClient builds an HTTPClient.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		http:    sharedhttp.NewClient(sharedhttp.VectorStoreClientConfig(timeout)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "vectorstore-client",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *HTTPClient) CreateCollection(ctx context.Context, name string) (string, error) {
	var resp collectionResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/collections", map[string]string{"name": name}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) GetOrCreateCollection(ctx context.Context, name string) (string, error) {
	var resp collectionResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/collections", map[string]interface{}{"name": name, "get_or_create": true}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

type addRequest struct {
	IDs        []string            `json:"ids"`
	Documents  []string            `json:"documents"`
	Metadatas  []map[string]string `json:"metadatas"`
	Embeddings [][]float64         `json:"embeddings,omitempty"`
}

func (c *HTTPClient) Add(ctx context.Context, handle string, docs []Document) error {
	req := addRequest{}
	for _, d := range docs {
		req.IDs = append(req.IDs, d.ID)
		req.Documents = append(req.Documents, d.Content)
		req.Metadatas = append(req.Metadatas, d.Metadata)
		if d.Embedding != nil {
			req.Embeddings = append(req.Embeddings, d.Embedding)
		}
	}
	path := fmt.Sprintf("/api/v1/collections/%s/add", handle)
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

type getRequest struct {
	Where Where `json:"where,omitempty"`
}

type getResponse struct {
	IDs        []string            `json:"ids"`
	Documents  []string            `json:"documents"`
	Metadatas  []map[string]string `json:"metadatas"`
	Embeddings [][]float64         `json:"embeddings"`
}

func (c *HTTPClient) Get(ctx context.Context, handle string, where Where) ([]Document, error) {
	var resp getResponse
	path := fmt.Sprintf("/api/v1/collections/%s/get", handle)
	if err := c.doJSON(ctx, http.MethodPost, path, getRequest{Where: where}, &resp); err != nil {
		return nil, err
	}

	docs := make([]Document, len(resp.IDs))
	for i, id := range resp.IDs {
		doc := Document{ID: id}
		if i < len(resp.Documents) {
			doc.Content = resp.Documents[i]
		}
		if i < len(resp.Metadatas) {
			doc.Metadata = resp.Metadatas[i]
		}
		if i < len(resp.Embeddings) {
			doc.Embedding = resp.Embeddings[i]
		}
		docs[i] = doc
	}
	return docs, nil
}

func (c *HTTPClient) Update(ctx context.Context, handle string, doc Document) error {
	path := fmt.Sprintf("/api/v1/collections/%s/update", handle)
	req := addRequest{
		IDs:       []string{doc.ID},
		Documents: []string{doc.Content},
		Metadatas: []map[string]string{doc.Metadata},
	}
	if doc.Embedding != nil {
		req.Embeddings = [][]float64{doc.Embedding}
	}
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, handle string, id string) error {
	path := fmt.Sprintf("/api/v1/collections/%s/delete", handle)
	return c.doJSON(ctx, http.MethodPost, path, map[string][]string{"ids": {id}}, nil)
}

type countResponse struct {
	Count int `json:"count"`
}

func (c *HTTPClient) Count(ctx context.Context, handle string, where Where) (int, error) {
	var resp countResponse
	path := fmt.Sprintf("/api/v1/collections/%s/count", handle)
	if err := c.doJSON(ctx, http.MethodPost, path, getRequest{Where: where}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("vectorclient: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return nil, fmt.Errorf("vectorclient: decoding response from %s: %w", path, err)
			}
		}
		return nil, nil
	})
	return err
}
