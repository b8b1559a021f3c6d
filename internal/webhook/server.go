package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/park285/rematch-discord-bot/internal/matchlife"
	"github.com/park285/rematch-discord-bot/pkg/matchdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	PathHealth         = "/health"
	PathMatchCreated   = "/webhook/partida-criada"
	PathMatchFinished  = "/webhook/partida-finalizada"
	headerRequestID    = "X-Request-Id"
	defaultCallTimeout = 60 * time.Second
	maxBodySize        = 1 << 20
)

// Lifecycle is the core the webhooks drive.
type Lifecycle interface {
	Create(ctx context.Context, req domain.MatchRequest) (*matchlife.CreationResult, error)
	Teardown(ctx context.Context, id domain.MatchID, override *matchlife.ChannelOverride) (*matchlife.TeardownResult, error)
}

// Messages renders user-facing texts.
type Messages interface {
	Text(key string, data any, fallback string) string
}

// HealthFunc reports process status for GET /health.
type HealthFunc func() matchdto.HealthResponse

type Server struct {
	core    Lifecycle
	secret  []byte
	msgs    Messages
	health  HealthFunc
	logger  *zap.Logger
	timeout time.Duration
	srv     *fasthttp.Server
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMessages(m Messages) Option {
	return func(s *Server) { s.msgs = m }
}

func WithHealth(h HealthFunc) Option {
	return func(s *Server) { s.health = h }
}

// WithCallTimeout bounds a single create or teardown.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(core Lifecycle, secret string, opts ...Option) *Server {
	s := &Server{
		core:    core,
		secret:  []byte("Bearer " + strings.TrimSpace(secret)),
		logger:  zap.NewNop(),
		timeout: defaultCallTimeout,
	}
	if strings.TrimSpace(secret) == "" {
		s.secret = nil
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "rematch-discord-bot",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       s.timeout + 5*time.Second,
		MaxRequestBodySize: maxBodySize,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handler routes requests.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		reqID := uuid.NewString()
		ctx.Response.Header.Set(headerRequestID, reqID)
		log := s.logger.With(
			zap.String("request_id", reqID),
			zap.String("path", string(ctx.Path())),
		)
		start := time.Now()
		defer func() {
			log.Debug("webhook_request",
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("took", time.Since(start)),
			)
		}()

		switch string(ctx.Path()) {
		case PathHealth:
			if !ctx.IsGet() {
				s.methodNotAllowed(ctx)
				return
			}
			s.handleHealth(ctx)
		case PathMatchCreated:
			if !s.guard(ctx, log) {
				return
			}
			s.handleCreate(ctx, log)
		case PathMatchFinished:
			if !s.guard(ctx, log) {
				return
			}
			s.handleTeardown(ctx, log)
		default:
			writeJSON(ctx, fasthttp.StatusNotFound, matchdto.ErrorResponse{Error: "Not Found", Code: matchdto.CodeNotFound})
		}
	}
}

// guard enforces POST and the bearer secret.
func (s *Server) guard(ctx *fasthttp.RequestCtx, log *zap.Logger) bool {
	if !ctx.IsPost() {
		s.methodNotAllowed(ctx)
		return false
	}
	if !s.authorized(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)) {
		log.Warn("webhook_unauthorized", zap.String("remote", ctx.RemoteIP().String()))
		msg := s.text("error.unauthorized", nil, "Unauthorized")
		writeJSON(ctx, fasthttp.StatusUnauthorized, matchdto.ErrorResponse{Error: msg, Code: matchdto.CodeUnauthorized})
		return false
	}
	return true
}

func (s *Server) authorized(header []byte) bool {
	if len(s.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(header, s.secret) == 1
}

func (s *Server) methodNotAllowed(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusMethodNotAllowed, matchdto.ErrorResponse{Error: "Method Not Allowed", Code: matchdto.CodeBadRequest})
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	resp := matchdto.HealthResponse{Status: "ok", Bot: "offline"}
	if s.health != nil {
		resp = s.health()
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx, log *zap.Logger) {
	var body matchdto.CreateMatchRequest
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		s.fail(ctx, log, matchdto.DomainError{Code: matchdto.CodeBadRequest, Message: s.text("error.invalid_json", nil, "invalid JSON body"), Details: []string{err.Error()}})
		return
	}
	req, err := toMatchRequest(body)
	if err != nil {
		s.fail(ctx, log, matchdto.DomainError{Code: matchdto.CodeValidation, Message: err.Error()})
		return
	}
	_, rostered := req.(domain.RosteredMatch)
	log = log.With(zap.String("match_id", req.ID().String()))
	log.Info("webhook_match_created", zap.Bool("rostered", rostered))

	cctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	res, err := s.core.Create(cctx, req)
	if err != nil {
		s.fail(ctx, log, s.classify(err))
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toCreateResponse(res, rostered))
}

func (s *Server) handleTeardown(ctx *fasthttp.RequestCtx, log *zap.Logger) {
	var body matchdto.TeardownMatchRequest
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		s.fail(ctx, log, matchdto.DomainError{Code: matchdto.CodeBadRequest, Message: s.text("error.invalid_json", nil, "invalid JSON body"), Details: []string{err.Error()}})
		return
	}
	id, err := domain.ParseMatchID(body.MatchID.String())
	if err != nil {
		s.fail(ctx, log, matchdto.DomainError{Code: matchdto.CodeValidation, Message: err.Error()})
		return
	}
	log = log.With(zap.String("match_id", id.String()))
	log.Info("webhook_match_finished", zap.Bool("override", body.Channels != nil))

	cctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	res, err := s.core.Teardown(cctx, id, toOverride(body.Channels))
	if err != nil {
		s.fail(ctx, log, s.classify(err))
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.TeardownMatchResponse{
		Success:        true,
		MatchID:        id.String(),
		Source:         string(res.Source),
		AlreadyDeleted: res.Source == matchlife.SourceAlreadyDeleted,
	})
}

// classify maps core errors to wire errors.
func (s *Server) classify(err error) matchdto.DomainError {
	var verr *matchlife.ValidationError
	switch {
	case errors.As(err, &verr):
		msg := verr.Error()
		if names := verr.MissingNames(); len(names) > 0 {
			parts := make([]string, 0, len(names))
			for _, n := range names {
				parts = append(parts, s.text("error.missing_discord_id", map[string]string{"Name": n}, "member "+n+" has no discord_id"))
			}
			msg = strings.Join(parts, ", ")
		}
		return matchdto.DomainError{Code: matchdto.CodeValidation, Message: msg, Details: verr.Problems}
	case errors.Is(err, matchlife.ErrValidation):
		return matchdto.DomainError{Code: matchdto.CodeValidation, Message: err.Error()}
	case errors.Is(err, matchlife.ErrNotFound):
		return matchdto.DomainError{Code: matchdto.CodeNotFound, Message: s.text("error.not_found", nil, matchlife.ErrNotFound.Error())}
	case errors.Is(err, matchlife.ErrProvisioning):
		return matchdto.DomainError{Code: matchdto.CodeProvisioning, Message: s.text("error.provisioning", map[string]string{"Detail": err.Error()}, err.Error()), Retryable: true}
	case errors.Is(err, matchlife.ErrPersistence):
		return matchdto.DomainError{Code: matchdto.CodePersistence, Message: s.text("error.persistence", nil, err.Error()), Retryable: true}
	default:
		return matchdto.DomainError{Code: matchdto.CodeInternal, Message: err.Error(), Retryable: true}
	}
}

func statusFor(code string) int {
	switch code {
	case matchdto.CodeBadRequest, matchdto.CodeValidation:
		return fasthttp.StatusBadRequest
	case matchdto.CodeUnauthorized:
		return fasthttp.StatusUnauthorized
	case matchdto.CodeNotFound:
		return fasthttp.StatusNotFound
	case matchdto.CodeProvisioning:
		return fasthttp.StatusBadGateway
	default:
		return fasthttp.StatusInternalServerError
	}
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, log *zap.Logger, e matchdto.DomainError) {
	status := statusFor(e.Code)
	if status >= 500 {
		log.Error("webhook_failed", zap.String("code", e.Code), zap.String("error", e.Error()))
	} else {
		log.Warn("webhook_rejected", zap.String("code", e.Code), zap.String("error", e.Error()))
	}
	writeJSON(ctx, status, e.Response())
}

func (s *Server) text(key string, data any, fallback string) string {
	if s.msgs == nil {
		return fallback
	}
	return s.msgs.Text(key, data, fallback)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"error":"encode response"}`)
		return
	}
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetStatusCode(status)
	ctx.SetBody(raw)
}
