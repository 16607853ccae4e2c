// 包 api：集中注册 HTTP API 路由以解耦主入口；请求解码、错误码映射与统一响应封装
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hex-territory/internal/errs"
	"hex-territory/internal/logger"
	"hex-territory/internal/metrics"
	"hex-territory/internal/spatial"
	"hex-territory/internal/store"
	"hex-territory/internal/territory"
)

// Engine：路由依赖的引擎能力，由 *territory.Engine 实现
type Engine interface {
	Apply(ctx context.Context, ev territory.CaptureEvent) (*territory.EventResult, error)
	GetViewportTerritories(ctx context.Context, b spatial.Bounds, resolution int) (*territory.ViewportResult, error)
	GetRegion(ctx context.Context, id spatial.RegionID) (*store.Shard, error)
	GetProfile(ctx context.Context, user string) (*store.Profile, error)
}

// IdempotencyHeader：客户端提供的事件号，重试同一请求时保持不变
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

type handler struct {
	eng        Engine
	defaultRes int
}

// BuildRoutes：独立 ServeMux，主入口挂载到 API_BASE 前缀下
// defaultRes 为视口请求未带 resolution 时使用的分辨率
func BuildRoutes(eng Engine, defaultRes int) *http.ServeMux {
	h := &handler{eng: eng, defaultRes: defaultRes}
	mux := http.NewServeMux()
	mux.Handle("POST /territory/path", instrument("path", h.path))
	mux.Handle("POST /territory/click", instrument("click", h.click))
	mux.Handle("POST /territory/batch", instrument("batch", h.batch))
	mux.Handle("GET /territory/viewport", instrument("viewport", h.viewport))
	mux.Handle("GET /territory/region/{id}", instrument("region", h.region))
	mux.Handle("GET /users/{id}", instrument("user", h.user))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	})
	return mux
}

type pathRequest struct {
	User    string                `json:"user"`
	Color   string                `json:"color"`
	Path    []spatial.Coordinate  `json:"path"`
	Options territory.PathOptions `json:"options"`
}

type clickRequest struct {
	User  string  `json:"user"`
	Color string  `json:"color"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

type batchRequest struct {
	Updates map[string][]spatial.CellID `json:"updates"`
}

func (h *handler) path(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	h.apply(w, r, territory.CaptureEvent{
		Kind: territory.KindPathComplete,
		Path: &territory.PathSubmission{User: req.User, Color: req.Color, Coordinates: req.Path, Options: req.Options},
	})
}

func (h *handler) click(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !decode(w, r, &req) {
		return
	}
	h.apply(w, r, territory.CaptureEvent{
		Kind:  territory.KindHexClick,
		Click: &territory.ClickSubmission{User: req.User, Color: req.Color, Coordinate: spatial.Coordinate{Lat: req.Lat, Lng: req.Lng}},
	})
}

func (h *handler) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Updates == nil {
		writeError(w, errs.Invalid("updates", "required"), nil)
		return
	}
	h.apply(w, r, territory.CaptureEvent{Kind: territory.KindBatch, Batch: req.Updates})
}

func (h *handler) apply(w http.ResponseWriter, r *http.Request, ev territory.CaptureEvent) {
	ev.ID = r.Header.Get(IdempotencyHeader)
	ev.OccurredAt = time.Now().UTC()
	res, err := h.eng.Apply(r.Context(), ev)
	var data any
	if res != nil {
		if res.Replayed {
			w.Header().Set("Idempotent-Replayed", "true")
		}
		switch {
		case res.Capture != nil:
			data = res.Capture
		case res.Batch != nil:
			data = res.Batch
		}
	}
	if err != nil {
		writeError(w, err, data)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// viewport：bbox=w,s,e,n 或 west/south/east/north 四个参数
func (h *handler) viewport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		b   spatial.Bounds
		err error
	)
	if s := q.Get("bbox"); s != "" {
		b, err = spatial.ParseBBox(s)
	} else {
		b, err = spatial.ParseBounds(q.Get("west"), q.Get("south"), q.Get("east"), q.Get("north"))
	}
	if err != nil {
		writeError(w, err, nil)
		return
	}
	res := h.defaultRes
	if s := q.Get("resolution"); s != "" {
		if res, err = strconv.Atoi(s); err != nil {
			writeError(w, errs.Invalid("resolution", "%q is not an integer", s), nil)
			return
		}
	}
	out, err := h.eng.GetViewportTerritories(r.Context(), b, res)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"regions":    out.Regions,
		"regionIds":  out.RegionIDs,
		"totalHexes": out.TotalHexes,
	})
}

func (h *handler) region(w http.ResponseWriter, r *http.Request) {
	sh, err := h.eng.GetRegion(r.Context(), spatial.RegionID(r.PathValue("id")))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": sh})
}

func (h *handler) user(w http.ResponseWriter, r *http.Request) {
	p, err := h.eng.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": p})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"success": false, "error": "request body too large", "code": errs.CodeValidation,
			})
			return false
		}
		writeError(w, errs.Invalid("body", "%v", err), nil)
		return false
	}
	return true
}

// StatusOf：错误码到 HTTP 状态
func StatusOf(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeValidation:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodePartialApplication:
		return http.StatusMultiStatus
	case errs.CodePersistence:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError：部分落库时 data 携带已落库结果
func writeError(w http.ResponseWriter, err error, data any) {
	status := StatusOf(err)
	body := map[string]any{"success": false, "error": err.Error(), "code": errs.CodeOf(err)}
	if data != nil {
		body["data"] = data
	}
	if status >= http.StatusInternalServerError {
		logger.L().Warn("api_error", "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type codeWriter struct {
	http.ResponseWriter
	code int
}

func (c *codeWriter) WriteHeader(code int) {
	c.code = code
	c.ResponseWriter.WriteHeader(code)
}

func instrument(route string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		cw := &codeWriter{ResponseWriter: w, code: http.StatusOK}
		fn(cw, r)
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(cw.code)).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
