package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/davidahmann/strix/internal/decisionlog"
	"github.com/davidahmann/strix/internal/policy"
	"github.com/davidahmann/strix/pkg/types"
	"go.uber.org/zap"
)

// MaxRequestBytes caps the evaluate request body.
const MaxRequestBytes = 1 << 20

// Engine is the part of policy.Engine the transport needs.
type Engine interface {
	Evaluate(req types.EvaluationRequest) types.Decision
	Version() string
	Table() policy.Table
	Origin() policy.Origin
	Location() string
}

// LogObserver is notified of every decision log write.
type LogObserver interface {
	ObserveLogAppend(err error)
}

type Handler struct {
	Engine Engine
	// Log is optional; when nil decisions are not recorded.
	Log         decisionlog.Sink
	LogObserver LogObserver
	Logger      *zap.Logger
	Now         func() time.Time
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	req, err := decodeRequest(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	decision := h.Engine.Evaluate(req)
	h.record(r.Context(), req, decision)
	writeJSON(w, http.StatusOK, decision)
}

var errNotObject = errors.New("request body must be a JSON object")

// decodeRequest accepts exactly one JSON object. Unknown fields are ignored.
func decodeRequest(body io.Reader) (types.EvaluationRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return types.EvaluationRequest{}, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.EvaluationRequest{}, errNotObject
	}

	var req types.EvaluationRequest
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&req); err != nil {
		return types.EvaluationRequest{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return types.EvaluationRequest{}, errors.New("unexpected data after JSON object")
	}
	return req, nil
}

// record appends to the decision log. Failures are logged and never reach
// the caller.
func (h *Handler) record(ctx context.Context, req types.EvaluationRequest, decision types.Decision) {
	logger := h.logger()
	logger.Info("decision",
		zap.Any("agent_id", req.AgentID),
		zap.Stringp("artifact_type", req.ArtifactType),
		zap.Stringp("environment", req.Environment),
		zap.String("decision", string(decision.Decision)),
		zap.String("policy_version", decision.PolicyVersion),
	)
	if h.Log == nil {
		return
	}

	entry, err := decisionlog.BuildEntry(req, decision, h.now())
	if err == nil {
		err = h.Log.Append(context.WithoutCancel(ctx), entry)
	}
	if h.LogObserver != nil {
		h.LogObserver.ObserveLogAppend(err)
	}
	if err != nil {
		logger.Error("decision log append failed", zap.Error(err))
	}
}

type policyResponse struct {
	PolicyVersion string       `json:"policy_version"`
	Origin        string       `json:"origin"`
	Source        string       `json:"source,omitempty"`
	Policies      policy.Table `json:"policies"`
}

func (h *Handler) Policy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, policyResponse{
		PolicyVersion: h.Engine.Version(),
		Origin:        string(h.Engine.Origin()),
		Source:        h.Engine.Location(),
		Policies:      h.Engine.Table(),
	})
}

func (h *Handler) Decisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if h.Log == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "decision log not configured"})
		return
	}

	limit := decisionlog.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.Log.Recent(r.Context(), limit)
	if err != nil {
		h.logger().Error("decision log read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "decision log unavailable"})
		return
	}
	if entries == nil {
		entries = []decisionlog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": entries})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"policy_version": h.Engine.Version(),
	})
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
