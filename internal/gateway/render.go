package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vyrodovalexey/flowgate/internal/policy"
)

const contentTypeJSON = "application/json"

// errorBody is the JSON document written for failure results.
type errorBody struct {
	Message        string `json:"message"`
	HTTPStatusCode int    `json:"http_status_code"`
	Key            string `json:"key"`
}

// writeResult writes a failure result. headers, when non-nil, are the
// response headers policies set before the failure. Results carrying a
// content type are written as raw bodies.
func writeResult(w http.ResponseWriter, headers http.Header, result policy.Result) {
	status := result.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	hdr := w.Header()
	for name, values := range headers {
		hdr[name] = append([]string(nil), values...)
	}
	hdr.Del("Content-Length")

	if result.ContentType != "" {
		hdr.Set("Content-Type", result.ContentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, result.Message)
		return
	}

	hdr.Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Message:        result.Message,
		HTTPStatusCode: status,
		Key:            result.Key,
	})
}
