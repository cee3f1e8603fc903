package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	tests := []struct {
		name        string
		origins     []string
		origin      string
		preflight   bool
		wantCode    int
		wantAllow   string
		wantCredits string
	}{
		{name: "listed origin", origins: []string{"https://ops.example.com/"}, origin: "https://ops.example.com", wantCode: http.StatusTeapot, wantAllow: "https://ops.example.com", wantCredits: "true"},
		{name: "unlisted origin", origins: []string{"https://ops.example.com"}, origin: "https://evil.example.com", wantCode: http.StatusTeapot},
		{name: "wildcard", origins: []string{"*"}, origin: "https://any.example.com", wantCode: http.StatusTeapot, wantAllow: "*"},
		{name: "preflight", origins: []string{"https://ops.example.com"}, origin: "https://ops.example.com", preflight: true, wantCode: http.StatusNoContent, wantAllow: "https://ops.example.com", wantCredits: "true"},
		{name: "preflight rejected origin", origins: []string{"https://ops.example.com"}, origin: "https://evil.example.com", preflight: true, wantCode: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			method := http.MethodGet
			if tc.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/v1/slots", nil)
			req.Header.Set("Origin", tc.origin)
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tc.origins)(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("Allow-Origin = %q, want %q", got, tc.wantAllow)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tc.wantCredits {
				t.Fatalf("Allow-Credentials = %q, want %q", got, tc.wantCredits)
			}
			if tc.preflight && tc.wantAllow != "" && rec.Header().Get("Access-Control-Allow-Methods") == "" {
				t.Fatalf("preflight response is missing Allow-Methods")
			}
		})
	}
}
