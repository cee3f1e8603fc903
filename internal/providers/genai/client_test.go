package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"contentgen/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, HTTPClient: srv.Client(), RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestGenerateTextSendsSystemAndImages(t *testing.T) {
	var captured wireRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("key = %q, want test-key", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"ok\":"},{"text":"true}"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":120,"candidatesTokenCount":30}}`)
	})

	res, err := client.GenerateText(context.Background(), TextRequest{
		System: "be brief",
		Prompt: "judge this",
		Images: []InlineImage{{MimeType: "image/jpeg", Data: []byte{1, 2, 3}}},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if res.Text != `{"ok":true}` {
		t.Fatalf("Text = %q", res.Text)
	}
	if res.Usage.InputTokens != 120 || res.Usage.OutputTokens != 30 {
		t.Fatalf("Usage = %+v", res.Usage)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction = %+v", captured.SystemInstruction)
	}
	parts := captured.Contents[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[1].Text != "judge this" {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[0].InlineData.Data != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Fatalf("inline data = %q", parts[0].InlineData.Data)
	}
	if captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("response mime = %q", captured.GenerationConfig.ResponseMimeType)
	}
}

func TestGenerateTextErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "api error", status: http.StatusTooManyRequests, body: `{"error":{"code":429,"message":"quota"}}`, want: domain.ErrProviderFailure},
		{name: "prompt blocked", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"},"usageMetadata":{"promptTokenCount":10}}`, want: domain.ErrSafetyBlocked},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, want: domain.ErrInvalidResponse},
		{name: "garbage", status: http.StatusOK, body: `not json`, want: domain.ErrInvalidResponse},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := client.GenerateText(context.Background(), TextRequest{Prompt: "x"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerateTextOffline(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if !client.Offline() {
		t.Fatal("client without key should be offline")
	}
	if _, err := client.GenerateText(context.Background(), TextRequest{Prompt: "x"}); !errors.Is(err, ErrOffline) {
		t.Fatalf("err = %v, want ErrOffline", err)
	}
}

func TestGenerateImageSafetyFinishReason(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{},"finishReason":"IMAGE_SAFETY"}],"usageMetadata":{"promptTokenCount":40}}`)
	})
	asset, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x", AspectRatio: "4:5"})
	if !errors.Is(err, domain.ErrSafetyBlocked) {
		t.Fatalf("err = %v, want ErrSafetyBlocked", err)
	}
	if asset == nil || asset.Usage.InputTokens != 40 {
		t.Fatalf("asset = %+v, want usage reported", asset)
	}
}

func TestGenerateImageDecodesInlineData(t *testing.T) {
	png := renderSyntheticImage(64, 80, "a1b2c3d4e5f60718")
	encoded := base64.StdEncoding.EncodeToString(png)
	var captured wireRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/png","data":"`+encoded+`"}}]},"finishReason":"STOP"}]}`)
	})
	asset, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "bread", AspectRatio: "4:5", Seed: 42})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if asset.Width != 64 || asset.Height != 80 || asset.Synthetic {
		t.Fatalf("asset = %dx%d synthetic=%v", asset.Width, asset.Height, asset.Synthetic)
	}
	if !bytes.Equal(asset.Data, png) {
		t.Fatal("asset data does not match response payload")
	}
	if captured.GenerationConfig == nil || captured.GenerationConfig.Seed == nil || *captured.GenerationConfig.Seed != 42 {
		t.Fatalf("seed not forwarded: %+v", captured.GenerationConfig)
	}
	if captured.GenerationConfig.ImageConfig == nil || captured.GenerationConfig.ImageConfig.AspectRatio != "4:5" {
		t.Fatalf("aspect not forwarded: %+v", captured.GenerationConfig.ImageConfig)
	}
}

func TestSyntheticImageIsDeterministic(t *testing.T) {
	client, _ := NewClient(Options{})
	req := ImageRequest{Prompt: "croissant on a plate", AspectRatio: "1:1", RequestID: "slot-1", Seed: 7}
	a, err := client.GenerateImage(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	b, _ := client.GenerateImage(context.Background(), req)
	if !a.Synthetic || a.Width != 1024 || a.Height != 1024 {
		t.Fatalf("asset = %+v", a)
	}
	if a.StorageKey != b.StorageKey || !bytes.Equal(a.Data, b.Data) {
		t.Fatal("synthetic images differ for identical requests")
	}
	req.Seed = 8
	c, _ := client.GenerateImage(context.Background(), req)
	if c.StorageKey == a.StorageKey {
		t.Fatal("different seeds produced the same storage key")
	}
}

func TestNormalizeAspect(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
	}{
		{"4:5", 1024, 1280},
		{"16:9", 1920, 1080},
		{"", 1024, 1024},
		{"2:1", 1024, 512},
		{"bogus", 1024, 1024},
	}
	for _, tt := range tests {
		w, h := normalizeAspect(tt.in)
		if w != tt.w || h != tt.h {
			t.Fatalf("normalizeAspect(%q) = %d,%d, want %d,%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}

func TestGenerateRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	})
	res, err := client.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if res.Text != "ok" || calls.Load() != 2 {
		t.Fatalf("text = %q after %d calls, want ok after 2", res.Text, calls.Load())
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"bad prompt"}}`)
	})
	_, err := client.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	if !errors.Is(err, domain.ErrProviderFailure) || !strings.Contains(err.Error(), "bad prompt") {
		t.Fatalf("err = %v, want provider failure with the api message", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "not a url"}); err == nil {
		t.Fatal("NewClient accepted a base url without scheme and host")
	}
}
