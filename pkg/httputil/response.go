package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// Error: унифицированная ошибка (message + code), req_id попадает в meta.
func Error(ctx context.Context, w http.ResponseWriter, status int, msg string, meta map[string]any) {
	body := envelope{
		"message": msg,
		"code":    status,
	}
	if reqID, ok := FromContext(ctx); ok {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["req_id"] = reqID
	}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	JSON(w, status, envelope{"error": body})
}
