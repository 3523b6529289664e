package httputil

import (
	"errors"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	mock := NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"id":100}`).
		AddResponse(http.StatusNotFound, "missing").
		AddErrorResponse(errors.New("connection refused"))

	req, _ := http.NewRequest(http.MethodPost, "http://localhost:8080/v2/degeo?deid=100", nil)

	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != `{"id":100}` {
		t.Errorf("unexpected first response: %d %q", resp.StatusCode, body)
	}

	resp, err = mock.Do(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %v %v", resp, err)
	}

	if _, err := mock.Do(req); err == nil {
		t.Error("expected queued transport error")
	}

	resp, err = mock.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("expected default 200 after queue drained, got %v %v", resp, err)
	}

	if mock.RequestCount() != 4 {
		t.Errorf("expected 4 recorded requests, got %d", mock.RequestCount())
	}
	if mock.GetRequest(0).Method != http.MethodPost {
		t.Errorf("expected POST, got %s", mock.GetRequest(0).Method)
	}
	if mock.GetRequest(9) != nil {
		t.Error("expected nil for out-of-range request index")
	}
}

func TestMockHTTPClient_DoFuncAndDefaultError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DefaultError = errors.New("down")
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	if _, err := mock.Do(req); err == nil {
		t.Error("expected default error")
	}

	mock.DoFunc = func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusTeapot, Body: http.NoBody}, nil
	}
	resp, err := mock.Do(req)
	if err != nil || resp.StatusCode != http.StatusTeapot {
		t.Errorf("expected DoFunc response, got %v %v", resp, err)
	}
}

func TestNewStandardClient(t *testing.T) {
	c := NewStandardClient(3 * time.Second)
	if c.Client.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", c.Client.Timeout)
	}
}
