package toolbox

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxRequestBody bounds tool input read from an HTTP request.
const maxRequestBody = 1 << 20

// NewHTTPHandler serves tb over HTTP:
//
//	GET  /        lists tools
//	POST /{name}  calls a tool with the request body as input
//
// A call to an unknown tool responds 404. Handler failures respond 200 with
// isError set, mirroring MCP.
func NewHTTPHandler(tb *ToolBox) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, tb.Tools())
	})

	mux.HandleFunc("POST /{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if _, ok := tb.Get(name); !ok {
			writeJSON(w, http.StatusNotFound, Result{Content: "tool not found: " + name, IsError: true})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Result{Content: err.Error(), IsError: true})
			return
		}

		writeJSON(w, http.StatusOK, tb.Call(r.Context(), name, body))
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
