// Package proxy relays model-list, chat and image requests to the upstream
// model API, injecting the server-held credential and recording chat turns.
package proxy

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/veneer/pkg/assembler"
	"github.com/papercomputeco/veneer/pkg/eventstream"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
	"github.com/papercomputeco/veneer/pkg/sse"
	"github.com/papercomputeco/veneer/pkg/storage"
	"github.com/papercomputeco/veneer/proxy/header"
	"github.com/papercomputeco/veneer/proxy/worker"
)

const (
	routeModels = "/models"
	routeChat   = "/chat"
	routeImage  = "/image"

	upstreamModelsPath = "/models"
	upstreamChatPath   = "/chat/completions"
	upstreamImagePath  = "/image/generate"

	defaultTurnListLimit = 50
	maxTurnListLimit     = 500

	upstreamHeaderTimeout = 5 * time.Minute
)

// Proxy is a credential-injecting relay in front of the upstream model API.
type Proxy struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	logger        *slog.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
	limiter       *rate.Limiter
	metrics       *metrics
}

// New creates a new Proxy. Chat turns are written to driver in the background.
func New(config Config, driver storage.Driver, log *slog.Logger) (*Proxy, error) {
	if driver == nil {
		return nil, errors.New("storage driver is required")
	}

	upstream, err := url.Parse(config.UpstreamURL)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", config.UpstreamURL)
	}
	config.UpstreamURL = strings.TrimRight(config.UpstreamURL, "/")

	if log == nil {
		log = logger.Nop()
	}

	m := newMetrics()

	wp, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: config.Publisher,
		Source: eventstream.EventSource{
			Provider: config.Provider,
			Upstream: config.UpstreamURL,
		},
		OnStored: func(storage.Turn) { m.turnsStored.Inc() },
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = upstreamHeaderTimeout

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	p := &Proxy{
		config:        config,
		driver:        driver,
		workerPool:    wp,
		logger:        log,
		httpClient:    &http.Client{Transport: transport},
		server:        app,
		headerHandler: header.NewHandler(),
		metrics:       m,
	}

	if config.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(config.RateBurst, 1))
	}

	app.Use(compress.New())
	app.Use(p.countRequests)

	app.Get("/health", p.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})))

	app.Use(p.authorize)

	app.Get(routeModels, p.handleModels)
	app.Post(routeChat, p.handleChat)
	app.Post(routeImage, p.handleImage)
	app.Get("/turns", p.handleListTurns)
	app.Get("/turns/:id", p.handleGetTurn)

	return p, nil
}

// Run starts the proxy server on the configured address.
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listener(listener)
}

// Close shuts the server down, then waits for queued turns to be stored.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

func (p *Proxy) countRequests(c *fiber.Ctx) error {
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}

	p.metrics.requestsTotal.WithLabelValues(c.Route().Path, strconv.Itoa(status)).Inc()
	return err
}

func (p *Proxy) authorize(c *fiber.Ctx) error {
	if p.config.AccessToken == "" {
		return c.Next()
	}

	token := header.BearerToken(c)
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.config.AccessToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{Error: "unauthorized"})
	}

	return c.Next()
}

// allow takes a token from the upstream limiter, if one is configured.
func (p *Proxy) allow() bool {
	if p.limiter == nil || p.limiter.Allow() {
		return true
	}

	p.metrics.rateLimitedTotal.Inc()
	return false
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (p *Proxy) handleModels(c *fiber.Ctx) error {
	return p.relay(c, routeModels, http.MethodGet, upstreamModelsPath, nil)
}

func (p *Proxy) handleImage(c *fiber.Ctx) error {
	return p.relay(c, routeImage, http.MethodPost, upstreamImagePath, c.Body())
}

// newUpstreamRequest builds the upstream request for path, carrying over the
// client's query string and filtered headers, with the proxy's credential.
func (p *Proxy) newUpstreamRequest(ctx context.Context, c *fiber.Ctx, method, path string, body []byte) (*http.Request, error) {
	target := p.config.UpstreamURL + path
	if q := c.Request().URI().QueryString(); len(q) > 0 {
		target += "?" + string(q)
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, err
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, req)
	p.headerHandler.InjectCredentials(req, p.config.APIKey)
	return req, nil
}

// do sends req upstream and records how long the response headers took.
func (p *Proxy) do(route string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := p.httpClient.Do(req)
	p.metrics.upstreamDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	return resp, err
}

// relay forwards a non-streaming request and copies the upstream response
// back verbatim, whatever its status.
func (p *Proxy) relay(c *fiber.Ctx, route, method, path string, body []byte) error {
	if !p.allow() {
		return c.Status(fiber.StatusTooManyRequests).JSON(llm.ErrorResponse{Error: "rate limit exceeded"})
	}

	req, err := p.newUpstreamRequest(c.Context(), c, method, path, body)
	if err != nil {
		p.logger.Error("failed to create upstream request", "route", route, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to create upstream request"})
	}

	resp, err := p.do(route, req)
	if err != nil {
		p.logger.Error("upstream request failed", "route", route, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", "route", route, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "failed to read upstream response"})
	}

	p.headerHandler.SetClientResponseHeaders(c, resp)
	return c.Status(resp.StatusCode).Send(respBody)
}

// handleChat relays a chat completion. Event-stream responses are piped to
// the client chunk by chunk as they arrive; the turn is recorded once the
// response is complete.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	// The body outlives the handler when the response is streamed.
	body := bytes.Clone(c.Body())

	var chatReq *llm.ChatRequest
	var parsed llm.ChatRequest
	if err := json.Unmarshal(body, &parsed); err != nil {
		p.logger.Warn("failed to parse chat request, relaying without recording", "error", err)
	} else {
		chatReq = &parsed
	}

	if !p.allow() {
		return c.Status(fiber.StatusTooManyRequests).JSON(llm.ErrorResponse{Error: "rate limit exceeded"})
	}

	// The fiber context is recycled once the handler returns, so the upstream
	// request must not be bound to it.
	req, err := p.newUpstreamRequest(context.Background(), c, http.MethodPost, upstreamChatPath, body)
	if err != nil {
		p.logger.Error("failed to create upstream request", "route", routeChat, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to create upstream request"})
	}

	resp, err := p.do(routeChat, req)
	if err != nil {
		p.logger.Error("upstream request failed", "route", routeChat, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}

	p.headerHandler.SetClientResponseHeaders(c, resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		p.logger.Warn("upstream returned error status",
			"route", routeChat,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return c.Status(resp.StatusCode).Send(respBody)
	}

	var rec *turnRecorder
	if chatReq != nil {
		rec = newTurnRecorder(chatReq, startTime)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		pr, pw := io.Pipe()
		p.metrics.streamsInFlight.Inc()
		go p.relayStream(resp, pw, rec)

		c.Status(resp.StatusCode)
		c.Context().Response.SetBodyStream(pr, -1)
		return nil
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", "route", routeChat, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "failed to read upstream response"})
	}

	if rec != nil {
		var completion llm.ChatCompletion
		if err := json.Unmarshal(respBody, &completion); err != nil {
			p.logger.Warn("failed to parse chat completion", "error", err)
		} else {
			rec.asm.Apply(llm.EventFromCompletion(&completion))
			p.recordTurn(rec, false, resp.StatusCode)
		}
	}

	return c.Status(resp.StatusCode).Send(respBody)
}

// relayStream copies the upstream event stream into pw while folding each
// decoded event into rec. A relay error leaves the turn unrecorded.
func (p *Proxy) relayStream(resp *http.Response, pw *io.PipeWriter, rec *turnRecorder) {
	defer p.metrics.streamsInFlight.Dec()
	defer resp.Body.Close()
	defer pw.Close()

	tr := sse.NewTeeReader(resp.Body, pw, sse.WithLogger(p.logger))
	for {
		ev, err := tr.Next()
		if err != nil {
			p.logger.Error("chat stream relay failed",
				"written", tr.Written(),
				"error", err,
			)
			return
		}
		if ev == nil {
			break
		}
		if rec != nil {
			rec.asm.Apply(*ev)
		}
	}

	if rec != nil {
		p.recordTurn(rec, true, resp.StatusCode)
	}
}

// turnRecorder accumulates one relayed chat response.
type turnRecorder struct {
	turn storage.Turn
	asm  *assembler.Assembler
}

func newTurnRecorder(req *llm.ChatRequest, start time.Time) *turnRecorder {
	id := uuid.NewString()
	return &turnRecorder{
		turn: storage.Turn{
			ID:        id,
			Model:     req.Model,
			Prompt:    lastUserMessage(req.Messages),
			CreatedAt: start.UTC(),
		},
		asm: assembler.New(assembler.Options{
			MessageID: id,
			Prompt:    llm.PromptText(req.Messages),
			Start:     start,
		}),
	}
}

func (p *Proxy) recordTurn(rec *turnRecorder, streamed bool, status int) {
	snap := rec.asm.Finalize()
	usage := rec.asm.Usage()

	turn := rec.turn
	turn.Stream = streamed
	turn.StatusCode = status
	turn.Response = snap.Content
	turn.PromptTokens = deref(snap.Metrics.InputTokens)
	turn.CompletionTokens = deref(snap.Metrics.OutputTokens)
	turn.Estimated = usage.PromptTokens == nil || usage.CompletionTokens == nil
	turn.Duration = time.Since(turn.CreatedAt)

	p.metrics.tokensTotal.WithLabelValues(turn.Model, "prompt").Add(float64(turn.PromptTokens))
	p.metrics.tokensTotal.WithLabelValues(turn.Model, "completion").Add(float64(turn.CompletionTokens))

	if !p.workerPool.Enqueue(worker.Job{Path: routeChat, Turn: turn}) {
		p.metrics.turnsDropped.Inc()
	}
}

type turnList struct {
	Turns []*storage.Turn `json:"turns"`
}

func (p *Proxy) handleListTurns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultTurnListLimit)
	if limit <= 0 || limit > maxTurnListLimit {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{
			Error: fmt.Sprintf("limit must be between 1 and %d", maxTurnListLimit),
		})
	}

	turns, err := p.driver.List(c.Context(), storage.ListOptions{
		Model: c.Query("model"),
		Limit: limit,
	})
	if err != nil {
		p.logger.Error("failed to list turns", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list turns"})
	}
	if turns == nil {
		turns = []*storage.Turn{}
	}

	return c.JSON(turnList{Turns: turns})
}

func (p *Proxy) handleGetTurn(c *fiber.Ctx) error {
	turn, err := p.driver.Get(c.Context(), c.Params("id"))
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: notFound.Error()})
		}

		p.logger.Error("failed to get turn", "id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get turn"})
	}

	return c.JSON(turn)
}

func lastUserMessage(messages []llm.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
