// Package builtin serves local implementations of the four agent endpoints
// so the default registry works without external agents.
package builtin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kaptinlin/jsonschema"

	"coral-agents/internal/domain"
)

const maxRequestBytes = 1 << 20

// Agents handles POST /api/agents/<capability> for every capability.
type Agents struct {
	schemas map[domain.Capability]*jsonschema.Schema
	logger  *slog.Logger
}

// New compiles the payload schemas.
func New(logger *slog.Logger) (*Agents, error) {
	schemas := make(map[domain.Capability]*jsonschema.Schema, len(payloadSchemas))
	for c, raw := range payloadSchemas {
		s, err := jsonschema.NewCompiler().Compile([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", c, err)
		}
		schemas[c] = s
	}
	return &Agents{schemas: schemas, logger: logger}, nil
}

// Register mounts one route per capability through route.
func (a *Agents) Register(route func(pattern string, h http.HandlerFunc)) {
	for _, c := range domain.Capabilities() {
		route("POST /api/agents/"+string(c), a.Handler(c))
	}
}

// Handler returns the endpoint for capability c.
func (a *Agents) Handler(c domain.Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := a.decode(r, c)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var resp domain.Response
		switch p := payload.(type) {
		case domain.PromptRefinePayload:
			resp = refine(p)
		case domain.UIGenPayload:
			resp = generateUI(p)
		case domain.ErrorFlagPayload:
			resp = domain.ErrorFlagResponse{Flags: FlagErrors(p.Code)}
		case domain.CodeFixPayload:
			resp = fixCode(p, a.logger)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// decode reads {message, thread}, checks the capability and validates the
// payload before decoding it into its typed variant.
func (a *Agents) decode(r *http.Request, c domain.Capability) (domain.Payload, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var req struct {
		Message struct {
			Capability domain.Capability `json:"capability"`
			Payload    json.RawMessage   `json:"payload"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", domain.ErrInvalidInput)
	}
	if req.Message.Capability != c {
		return nil, fmt.Errorf("message for %q sent to %s agent: %w", req.Message.Capability, c, domain.ErrInvalidInput)
	}

	var data any
	if len(req.Message.Payload) == 0 || json.Unmarshal(req.Message.Payload, &data) != nil {
		return nil, fmt.Errorf("missing payload: %w", domain.ErrInvalidInput)
	}
	if result := a.schemas[c].Validate(data); !result.IsValid() {
		return nil, fmt.Errorf("payload: %s: %w", result.Error(), domain.ErrInvalidInput)
	}

	return domain.DecodePayload(c, req.Message.Payload)
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	code := domain.ErrorCodeOf(err)
	if errors.Is(err, domain.ErrInvalidInput) {
		code = domain.CodeInvalidMessage
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(code)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
