// Package vlclient implements the VL endpoint chat-completions client
// (spec.md §6 "VL endpoint contract"): the scheduler.Reasoner the
// scheduler's Phase C calls into. It speaks the same OpenAI-compatible
// chat-completions shape as the teacher's llm/providers/openaicompat
// provider base, paced by a token bucket and wrapped by the teacher's
// retry and circuit-breaker packages.
package vlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/basui01/reelscope/llm/circuitbreaker"
	"github.com/basui01/reelscope/llm/retry"
	"github.com/basui01/reelscope/llm/tokenizer"
	"github.com/basui01/reelscope/scheduler"
)

// errTransport marks an error as a connection/5xx failure eligible for
// the exponential-backoff retry ladder, as opposed to a malformed
// response body the scheduler itself re-prompts for.
var errTransport = errors.New("vl endpoint transport error")

// Config carries the VL endpoint's connection and pacing settings,
// sourced from the VL_API_BASE/VL_MODEL configuration surface
// (spec.md §6).
type Config struct {
	BaseURL      string
	Model        string
	EndpointPath string // defaults to "/v1/chat/completions"
	Timeout      time.Duration

	// RequestsPerSecond/Burst pace outbound calls; the scheduler already
	// bounds concurrency per shot, this guards against many shots' Phase
	// C firing on the same endpoint at once.
	RequestsPerSecond float64
	Burst             int

	CircuitBreaker *circuitbreaker.Config
}

// DefaultConfig returns sane defaults for a local VL inference server.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8000",
		Model:             "qwen-vl",
		EndpointPath:      "/v1/chat/completions",
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// UnreachableError reports a VL endpoint that did not respond at all
// after exhausting the retry ladder. It satisfies the scheduler's
// unexported externalReasonError contract via ExternalUnreachable, so
// the scheduler records "vl_unreachable" instead of retrying with a
// stricter re-prompt.
type UnreachableError struct {
	cause error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("vl endpoint unreachable: %v", e.cause)
}

func (e *UnreachableError) Unwrap() error { return e.cause }

// ExternalUnreachable implements the scheduler's externalReasonError seam.
func (e *UnreachableError) ExternalUnreachable() bool { return true }

// ParseError reports a response that was received but didn't satisfy
// the strict JSON contract. It deliberately does not implement
// ExternalUnreachable, so the scheduler treats it as a malformed
// response and re-prompts once with Strict=true.
type ParseError struct {
	cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vl endpoint response did not match the reasoning schema: %v", e.cause)
}

func (e *ParseError) Unwrap() error { return e.cause }

// chatMessage mirrors the OpenAI-compatible message shape used
// throughout llm/providers/openaicompat.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Client implements scheduler.Reasoner against a real VL endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	retryer retry.Retryer
	breaker circuitbreaker.CircuitBreaker
	encoder tokenizer.Tokenizer
	tracer  trace.Tracer
	logger  *zap.Logger
}

var _ scheduler.Reasoner = (*Client)(nil)
var _ scheduler.SceneReasoner = (*Client)(nil)

// New constructs a Client. The exponential-backoff policy matches
// spec.md §4.4's "3 attempts at 1s, 2s, 4s" requirement directly:
// MaxRetries=3 with an initial 1s delay doubling each attempt.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "vlclient"))

	var encoder tokenizer.Tokenizer
	if enc, err := tokenizer.NewTiktokenTokenizer(cfg.Model); err != nil {
		logger.Warn("tiktoken encoding unavailable, prompt token estimates disabled", zap.Error(err))
	} else {
		encoder = enc
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		retryer: retry.NewBackoffRetryer(&retry.RetryPolicy{
			MaxRetries:      3,
			InitialDelay:    1 * time.Second,
			MaxDelay:        4 * time.Second,
			Multiplier:      2.0,
			RetryableErrors: []error{errTransport},
		}, logger),
		breaker: circuitbreaker.NewCircuitBreaker(cfg.CircuitBreaker, logger),
		encoder: encoder,
		tracer:  otel.Tracer("github.com/basui01/reelscope/vlclient"),
		logger:  logger,
	}
}

// Reason implements scheduler.Reasoner: it builds the strict-JSON
// prompt contract, paces and retries the HTTP round trip, and parses
// the reply into a ReasonResult.
func (c *Client) Reason(ctx context.Context, req scheduler.ReasonRequest) (scheduler.ReasonResult, error) {
	ctx, span := c.tracer.Start(ctx, "vlclient.Reason")
	defer span.End()
	span.SetAttributes(
		attribute.String("shot_id", req.ShotID),
		attribute.Int("max_frames", req.MaxFrames),
		attribute.Bool("strict", req.Strict),
	)

	system, user := buildPrompt(req)
	if c.encoder != nil {
		if n, err := c.encoder.CountTokens(system + user); err == nil {
			span.SetAttributes(attribute.Int("prompt_tokens_est", n))
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return scheduler.ReasonResult{}, fmt.Errorf("vlclient: rate limiter: %w", ctx.Err())
	}

	var result scheduler.ReasonResult
	breakerErr := c.breaker.Call(ctx, func() error {
		return c.retryer.Do(ctx, func() error {
			raw, err := c.callChatCompletions(ctx, system, user)
			if err != nil {
				return err
			}
			parsed, err := parseReasonResult(raw)
			if err != nil {
				return &ParseError{cause: err}
			}
			result = parsed
			return nil
		})
	})
	if breakerErr != nil {
		if errors.Is(breakerErr, errTransport) {
			return scheduler.ReasonResult{}, &UnreachableError{cause: breakerErr}
		}
		var parseErr *ParseError
		if errors.As(breakerErr, &parseErr) {
			return scheduler.ReasonResult{}, parseErr
		}
		// Circuit open, or any other non-transport failure: treat as
		// unreachable so the scheduler skips rather than spins.
		return scheduler.ReasonResult{}, &UnreachableError{cause: breakerErr}
	}
	return result, nil
}

// callChatCompletions performs one HTTP round trip. Network errors and
// 5xx responses are wrapped in errTransport so the retryer's
// RetryableErrors filter picks them up; 4xx responses and body decode
// failures are returned unwrapped since retrying won't help.
func (c *Client) callChatCompletions(ctx context.Context, system, user string) (chatResponse, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return chatResponse{}, fmt.Errorf("vlclient: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.EndpointPath, bytes.NewReader(payload))
	if err != nil {
		return chatResponse{}, fmt.Errorf("vlclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return chatResponse{}, fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return chatResponse{}, fmt.Errorf("%w: status %d: %s", errTransport, resp.StatusCode, string(msg))
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return chatResponse{}, fmt.Errorf("vlclient: status %d: %s", resp.StatusCode, string(msg))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chatResponse{}, fmt.Errorf("vlclient: decode response: %w", err)
	}
	return out, nil
}

// ReasonScene implements scheduler.SceneReasoner: it synthesizes a
// scene-level narrative from the scene's aggregate features and its
// shots' Phase C summaries, without sampling any frames — mirroring
// the original implementation's separate scene-analysis pass, which
// also passes no images (`image_paths=None`).
func (c *Client) ReasonScene(ctx context.Context, req scheduler.SceneReasonRequest) (map[string]any, error) {
	ctx, span := c.tracer.Start(ctx, "vlclient.ReasonScene")
	defer span.End()
	span.SetAttributes(
		attribute.String("scene_id", req.SceneID),
		attribute.Int("shot_count", req.ShotCount),
	)

	system, user := buildScenePrompt(req)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("vlclient: rate limiter: %w", ctx.Err())
	}

	var result map[string]any
	breakerErr := c.breaker.Call(ctx, func() error {
		return c.retryer.Do(ctx, func() error {
			raw, err := c.callChatCompletions(ctx, system, user)
			if err != nil {
				return err
			}
			if len(raw.Choices) == 0 {
				return &ParseError{cause: fmt.Errorf("vlclient: empty choices")}
			}
			var parsed map[string]any
			if err := json.Unmarshal([]byte(raw.Choices[0].Message.Content), &parsed); err != nil {
				return &ParseError{cause: err}
			}
			result = parsed
			return nil
		})
	})
	if breakerErr != nil {
		if errors.Is(breakerErr, errTransport) {
			return nil, &UnreachableError{cause: breakerErr}
		}
		var parseErr *ParseError
		if errors.As(breakerErr, &parseErr) {
			return nil, parseErr
		}
		return nil, &UnreachableError{cause: breakerErr}
	}
	return result, nil
}

// buildScenePrompt mirrors the original implementation's SCENE_SYSTEM/
// SCENE_USER_TEMPLATE contract: a fixed JSON schema of narrative_
// function/tone/motifs/risks, populated from the scene's duration,
// shot count, per-shot summaries, and aggregate features.
func buildScenePrompt(req scheduler.SceneReasonRequest) (system, user string) {
	system = `You are a precise scene analyst. Return STRICT JSON only with keys: narrative_function, tone, motifs, risks. ` +
		`Do not include any text outside the JSON object.`

	features, _ := json.Marshal(req.Features)
	summaries := strings.Join(req.ShotSummaries, "\n")
	user = fmt.Sprintf(
		"Analyze this scene and return JSON.\n\nScene ID: %s\nDuration: %.2fs\nNumber of shots: %d\n\nShot summaries:\n%s\n\nFeatures: %s\n\nProvide JSON analysis following the format specified in the system prompt.",
		req.SceneID, req.DurationS, req.ShotCount, summaries, string(features),
	)
	return system, user
}

// buildPrompt renders the system message that pins the strict JSON
// contract and the user message carrying the sampled frame references
// and detector summary, per spec.md §6.
func buildPrompt(req scheduler.ReasonRequest) (system, user string) {
	system = `Reply with a single JSON object matching this schema and nothing else: ` +
		`{"summary": string, "mood": string, "intent": string, "composition_notes": [string], "transition_guess": string}. ` +
		`Do not include markdown fences or any text outside the JSON object.`
	if req.Strict {
		system += ` Your previous reply failed to parse as this exact JSON shape; this time emit valid JSON only, with no trailing commentary.`
	}

	summary, _ := json.Marshal(req.DetectorSummary)
	user = fmt.Sprintf("shot_id=%s frames=%v detector_summary=%s", req.ShotID, req.Frames, string(summary))
	return system, user
}

// parseReasonResult strictly decodes the VL endpoint's chat completion
// into the ReasonResult shape, rejecting anything that doesn't parse as
// valid JSON for the fixed schema.
func parseReasonResult(resp chatResponse) (scheduler.ReasonResult, error) {
	if len(resp.Choices) == 0 {
		return scheduler.ReasonResult{}, fmt.Errorf("vlclient: empty choices")
	}
	var result scheduler.ReasonResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return scheduler.ReasonResult{}, fmt.Errorf("vlclient: unmarshal reasoning JSON: %w", err)
	}
	if result.Summary == "" {
		return scheduler.ReasonResult{}, fmt.Errorf("vlclient: reasoning JSON missing required summary field")
	}
	return result, nil
}
