// Package claudeagent implements the ClaudeAgent capability slot: a
// narrative-commentary generator backed by an HTTP-reachable LLM endpoint.
// This wraps a single HTTP call behind the capability contract rather than a full SDK;
// the Agent Runtime already supplies retry and circuit-breaking around
// every Invoke call, so this agent stays a thin transport.
package claudeagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kestrelfi/patternrunner/core"
)

const agentName = "ClaudeAgent"

// Agent serves commentary.* capabilities by POSTing a prompt to Endpoint.
// When Endpoint is empty, Invoke returns a deterministic stub response so
// the capability slot is always exercisable in development and tests.
type Agent struct {
	Endpoint string
	client   *http.Client
}

// New returns a ClaudeAgent that calls endpoint. An empty endpoint runs in
// stub mode.
func New(endpoint string) *Agent {
	return &Agent{Endpoint: endpoint, client: &http.Client{}}
}

func (a *Agent) Name() string { return agentName }

func (a *Agent) Capabilities() []string {
	return []string{"commentary.generate_summary"}
}

func (a *Agent) RequiresPricingPack(capability string) bool { return false }

func (a *Agent) Invoke(ctx context.Context, capability string, args map[string]interface{}) (interface{}, error) {
	if capability != "commentary.generate_summary" {
		return nil, core.NewEngineError(core.KindUnknownCapability, "claudeagent.Invoke",
			fmt.Sprintf("unsupported capability %q", capability), core.ErrUnknownCapability)
	}

	prompt, ok := args["prompt"].(string)
	if !ok || prompt == "" {
		return nil, core.NewEngineError(core.KindInvalidInput, "claudeagent.Invoke",
			"missing required arg \"prompt\"", core.ErrInvalidInput)
	}

	if a.Endpoint == "" {
		return map[string]interface{}{
			"summary": fmt.Sprintf("[stub commentary for prompt: %.80s]", prompt),
			"_metadata": map[string]interface{}{
				"source":     agentName + ":stub",
				"confidence": 0.0,
				"warnings":   []interface{}{"claude endpoint not configured, returning stub commentary"},
			},
		}, nil
	}

	body, err := json.Marshal(map[string]interface{}{"prompt": prompt})
	if err != nil {
		return nil, core.NewEngineError(core.KindInvalidInput, "claudeagent.Invoke", "encoding request body", core.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewEngineError(core.KindAgentTransientFailure, "claudeagent.Invoke", err.Error(), core.ErrAgentTransientFailure)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, core.NewEngineError(core.KindAgentTransientFailure, "claudeagent.Invoke", err.Error(), core.ErrAgentTransientFailure)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewEngineError(core.KindAgentTransientFailure, "claudeagent.Invoke", err.Error(), core.ErrAgentTransientFailure)
	}

	if resp.StatusCode >= 500 {
		return nil, core.NewEngineError(core.KindAgentTransientFailure, "claudeagent.Invoke",
			fmt.Sprintf("endpoint returned %d", resp.StatusCode), core.ErrAgentTransientFailure)
	}
	if resp.StatusCode >= 400 {
		return nil, core.NewEngineError(core.KindAgentPermanentFailure, "claudeagent.Invoke",
			fmt.Sprintf("endpoint returned %d", resp.StatusCode), core.ErrAgentPermanentFailure)
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, core.NewEngineError(core.KindAgentPermanentFailure, "claudeagent.Invoke",
			"malformed response body", core.ErrAgentPermanentFailure)
	}

	return map[string]interface{}{
		"summary": parsed.Summary,
		"_metadata": map[string]interface{}{
			"source": agentName + ":live",
		},
	}, nil
}
