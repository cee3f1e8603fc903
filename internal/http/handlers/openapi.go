package handlers

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
)

//go:embed openapi.json
var openAPIDocument []byte

var (
	openAPIOnce sync.Once
	openAPIDoc  map[string]any
	openAPIErr  error
)

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>body{margin:0}redoc{display:block;height:100vh}</style>
</head>
<body>
<redoc spec-url="{{.SpecURL}}"></redoc>
<script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
</body>
</html>`))

// OpenAPIJSON serves the embedded document with servers pointing at the host
// the request came in on.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	openAPIOnce.Do(func() {
		openAPIErr = json.Unmarshal(openAPIDocument, &openAPIDoc)
	})
	if openAPIErr != nil {
		a.Logger.Error().Err(openAPIErr).Msg("embedded openapi document is invalid")
		a.error(w, http.StatusInternalServerError, "internal", "openapi document unavailable")
		return
	}

	doc := make(map[string]any, len(openAPIDoc)+1)
	for k, v := range openAPIDoc {
		doc[k] = v
	}
	doc["servers"] = []map[string]string{{"url": baseURL(r)}}
	a.json(w, http.StatusOK, doc)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := docsPage.Execute(&buf, map[string]string{
		"Title":   "Content Generation API",
		"SpecURL": baseURL(r) + "/v1/openapi.json",
	})
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "render docs")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
