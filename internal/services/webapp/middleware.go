package webapp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"iris-osint/internal/domain/model"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyActor     contextKey = "actor"
)

const (
	headerActorID   = "X-Actor-Id"
	headerActorRole = "X-Actor-Role"
	headerRequestID = "X-Request-Id"
)

// requestIDMiddleware 为每个请求分配/透传请求 ID。
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(headerRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(headerRequestID, rid)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverMiddleware 吸收 handler panic，返回统一 500 信封。
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic",
					"request_id", requestID(r.Context()),
					"path", r.URL.Path,
					"panic", rec)
				writeEnvelopeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder 捕获响应状态码，供访问日志使用。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			"request_id", requestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// actorMiddleware 从请求头解析身份上下文。
// X-Actor-Id 缺失直接拒绝；角色缺省为 investigator，未知角色按 investigator 处理。
func (s *Server) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := strings.TrimSpace(r.Header.Get(headerActorID))
		if actorID == "" {
			writeEnvelopeError(w, http.StatusUnauthorized, "AUTHORIZATION_ERROR", "missing "+headerActorID+" header")
			return
		}
		role := model.RoleInvestigator
		if strings.EqualFold(strings.TrimSpace(r.Header.Get(headerActorRole)), string(model.RoleOwner)) {
			role = model.RoleOwner
		}
		ctx := context.WithValue(r.Context(), ctxKeyActor, model.Actor{ID: actorID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func actorFrom(ctx context.Context) model.Actor {
	if v, ok := ctx.Value(ctxKeyActor).(model.Actor); ok {
		return v
	}
	return model.Actor{}
}
