// Package http exposes the procurement REST API. Handlers decode, call the
// service layer, and map apperr codes to statuses. Auth follows the token
// pattern used across the platform: short-lived HS256 access tokens plus
// hashed, rotating refresh sessions.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gasanashema/procure-to-pay/internal/apperr"
	"github.com/gasanashema/procure-to-pay/internal/auth"
	"github.com/gasanashema/procure-to-pay/internal/config"
	"github.com/gasanashema/procure-to-pay/internal/crypto"
	"github.com/gasanashema/procure-to-pay/internal/filter"
	"github.com/gasanashema/procure-to-pay/internal/model"
	"github.com/gasanashema/procure-to-pay/internal/policy"
	"github.com/gasanashema/procure-to-pay/internal/repository"
	"github.com/gasanashema/procure-to-pay/internal/service"
)

const maxUploadBytes = 10 << 20

type Server struct {
	cfg   config.Config
	store repository.Store
	svc   *service.RequestService
	redis *redis.Client
	log   zerolog.Logger
}

func NewServer(cfg config.Config, store repository.Store, svc *service.RequestService, redisClient *redis.Client, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, store: store, svc: svc, redis: redisClient, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login/", s.handleLogin)
		r.Post("/auth/refresh/", s.handleRefresh)
		r.Post("/auth/logout/", s.handleLogout)
		r.Post("/auth/register/", s.handleRegister)
		r.Post("/auth/password-reset/", s.handlePasswordReset)
		r.Post("/auth/password-reset/confirm/", s.handlePasswordResetConfirm)
		r.With(s.authMiddleware).Get("/auth/profile/", s.handleProfile)

		r.With(s.authMiddleware).Get("/navigation/", s.handleNavigation)

		r.With(s.authMiddleware).Route("/requests", func(r chi.Router) {
			r.Get("/", s.handleListRequests)
			r.With(s.requireRole(model.RoleStaff)).Post("/", s.handleCreateRequest)
			r.Get("/{requestId}/", s.handleGetRequest)
			r.Delete("/{requestId}/", s.handleDeleteRequest)
			r.Get("/{requestId}/approvals/", s.handleListApprovals)
			r.With(s.requireRole(model.RoleApprover)).Post("/{requestId}/approve/", s.handleApprove)
			r.With(s.requireRole(model.RoleApprover)).Post("/{requestId}/reject/", s.handleReject)
			r.With(s.requireRole(model.RoleStaff)).Post("/{requestId}/upload_proforma/", s.handleUploadProforma)
			r.With(s.requireRole(model.RoleStaff)).Post("/{requestId}/upload_receipt/", s.handleUploadReceipt)
		})

		r.With(s.authMiddleware, s.requireRole(model.RoleApprover)).Get("/approvals/pending/", s.handlePendingApprovals)

		r.With(s.authMiddleware, s.requireRole(model.RoleFinance)).Route("/finance", func(r chi.Router) {
			r.Get("/", s.handleFinanceQueue)
			r.Post("/{requestId}/generate_po/", s.handleGeneratePO)
			r.Get("/po/", s.handleListPOs)
			r.Get("/po/{poId}/", s.handleGetPO)
			r.Post("/po/{poId}/acknowledge/", s.handleAcknowledgePO)
			r.Post("/po/{poId}/fulfill/", s.handleFulfillPO)
		})
	})

	return r
}

// Middleware

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "missing_token")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// currentUser resolves the authenticated user from claims so handlers always
// see fresh role and name data.
func (s *Server) currentUser(r *http.Request) (model.User, error) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return model.User{}, apperr.Unauthorized("missing token")
	}
	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, apperr.Unauthorized("user not found")
	}
	return user, err
}

// Auth handlers

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    userResponse `json:"user"`
}

type userResponse struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Username))
	if email == "" {
		email = strings.TrimSpace(strings.ToLower(req.Email))
	}
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	access, refresh, err := s.issueTokens(r.Context(), user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Access: access, Refresh: refresh, User: mapUser(user)})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	session, err := s.store.GetRefreshSession(r.Context(), crypto.HashToken(req.Refresh))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}

	// Rotation: the presented token is single use.
	if err := s.store.RevokeRefreshSession(r.Context(), session.ID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	access, refresh, err := s.issueTokens(r.Context(), user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Access: access, Refresh: refresh, User: mapUser(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Refresh != "" {
		session, err := s.store.GetRefreshSession(r.Context(), crypto.HashToken(req.Refresh))
		if err == nil {
			_ = s.store.RevokeRefreshSession(r.Context(), session.ID, time.Now().UTC())
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}
	role := model.RoleStaff
	if req.Role != "" {
		parsed, err := model.ParseRole(req.Role)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_role")
			return
		}
		role = parsed
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	access, refresh, err := s.issueTokens(r.Context(), user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Access: access, Refresh: refresh, User: mapUser(user)})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

const resetKeyPrefix = "pwdreset:"

type passwordResetRequest struct {
	Email string `json:"email"`
}

// handlePasswordReset issues a short-lived reset token stored in redis. The
// response never reveals whether the email exists.
func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	accepted := map[string]string{"status": "accepted"}
	if s.redis == nil {
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}
	user, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	token, err := crypto.NewResetToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	key := resetKeyPrefix + crypto.HashToken(token)
	if err := s.redis.Set(r.Context(), key, user.ID, s.cfg.ResetTokenTTL).Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	// Delivery would normally go through a mailer. Logged so operators can
	// recover tokens in dev environments.
	s.log.Info().Str("user_id", user.ID).Msg("password reset token issued")
	writeJSON(w, http.StatusAccepted, accepted)
}

type passwordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "missing_token")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "reset_unavailable")
		return
	}

	key := resetKeyPrefix + crypto.HashToken(req.Token)
	userID, err := s.redis.Get(r.Context(), key).Result()
	if err == redis.Nil {
		writeError(w, http.StatusBadRequest, "invalid_reset_token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	_ = s.redis.Del(r.Context(), key)

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	now := time.Now().UTC()
	if err := s.store.UpdateUserPassword(r.Context(), userID, hash, now); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	// Every open session dies with the old password.
	_ = s.store.RevokeRefreshSessionsByUser(r.Context(), userID, now)

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_updated"})
}

func (s *Server) issueTokens(ctx context.Context, user model.User, userAgent, ip string) (string, string, error) {
	access, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: user.ID,
		Role:   user.Role,
	})
	if err != nil {
		return "", "", err
	}

	refresh, err := crypto.NewRefreshToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	session := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refresh),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ip != "" {
		session.IPAddress = &ip
	}
	if err := s.store.CreateRefreshSession(ctx, session); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Navigation

type navigationRoute struct {
	Path string `json:"path"`
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	patterns := policy.RoutesFor(claims.Role)
	out := make([]navigationRoute, 0, len(patterns))
	for _, pattern := range patterns {
		out = append(out, navigationRoute{Path: pattern})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"home":   policy.HomeRoute(claims.Role),
		"routes": out,
	})
}

// Request handlers

type requestItemResponse struct {
	ID       string `json:"id"`
	ItemName string `json:"item_name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	Total    string `json:"total"`
}

type requestResponse struct {
	ID                string                `json:"id"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Amount            string                `json:"amount"`
	VendorName        string                `json:"vendor_name"`
	Category          string                `json:"category"`
	Urgency           model.Urgency         `json:"urgency"`
	Status            model.RequestStatus   `json:"status"`
	CreatedBy         string                `json:"created_by"`
	CreatedByName     string                `json:"created_by_name"`
	ProformaFile      *string               `json:"proforma_file"`
	ReceiptFile       *string               `json:"receipt_file"`
	PurchaseOrderFile *string               `json:"purchase_order_file"`
	Items             []requestItemResponse `json:"items"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	list, err := s.svc.ListForRole(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}

	search := r.URL.Query().Get("search")
	status := r.URL.Query().Get("status")
	list = filter.Requests(list, search, status)

	results := make([]requestResponse, 0, len(list))
	for _, request := range list {
		results = append(results, mapRequest(request))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	input := service.CreateRequestInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Amount:      r.FormValue("amount"),
		VendorName:  r.FormValue("vendor_name"),
		Category:    r.FormValue("category"),
		Urgency:     r.FormValue("urgency"),
	}
	if raw := r.FormValue("items"); raw != "" {
		var items []struct {
			ItemName string `json:"item_name"`
			Price    string `json:"price"`
			Quantity int    `json:"quantity"`
		}
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_items")
			return
		}
		for _, item := range items {
			input.Items = append(input.Items, service.ItemInput{ItemName: item.ItemName, Price: item.Price, Quantity: item.Quantity})
		}
	}

	if path, ok, err := s.saveUpload(r, "proforma_file", "proformas"); err != nil {
		writeError(w, http.StatusInternalServerError, "upload_failed")
		return
	} else if ok {
		input.ProformaFile = &path
	}

	request, err := s.svc.Create(r.Context(), user, input)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapRequest(request))
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	request, err := s.svc.Get(r.Context(), user, chi.URLParam(r, "requestId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRequest(request))
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.svc.Delete(r.Context(), user, chi.URLParam(r, "requestId")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decisionRequest struct {
	Comments string `json:"comments"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, true)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, false)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, approve bool) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req decisionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
	}

	requestID := chi.URLParam(r, "requestId")
	var request model.PurchaseRequest
	if approve {
		request, err = s.svc.Approve(r.Context(), user, requestID, req.Comments)
	} else {
		request, err = s.svc.Reject(r.Context(), user, requestID, req.Comments)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRequest(request))
}

func (s *Server) handleUploadProforma(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, "proforma_file", "proformas", s.svc.AttachProforma)
}

func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, "receipt_file", "receipts", s.svc.AttachReceipt)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, field, subdir string, attach func(context.Context, model.User, string, string) (model.PurchaseRequest, error)) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}
	path, ok, err := s.saveUpload(r, field, subdir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload_failed")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}

	request, err := attach(r.Context(), user, chi.URLParam(r, "requestId"), path)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRequest(request))
}

type approvalResponse struct {
	ID           string               `json:"id"`
	RequestID    string               `json:"request_id"`
	ApproverID   string               `json:"approver_id"`
	ApproverName string               `json:"approver_name"`
	Role         model.Role           `json:"role"`
	Status       model.ApprovalStatus `json:"status"`
	Comments     string               `json:"comments"`
	Timestamp    time.Time            `json:"timestamp"`
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	steps, err := s.svc.Approvals(r.Context(), user, chi.URLParam(r, "requestId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]approvalResponse, 0, len(steps))
	for _, step := range steps {
		out = append(out, approvalResponse{
			ID:           step.ID,
			RequestID:    step.RequestID,
			ApproverID:   step.ApproverID,
			ApproverName: step.ApproverName,
			Role:         step.Role,
			Status:       step.Status,
			Comments:     step.Comments,
			Timestamp:    step.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	list, err := s.svc.ListForRole(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	results := make([]requestResponse, 0, len(list))
	for _, request := range list {
		results = append(results, mapRequest(request))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Finance handlers

type poResponse struct {
	ID         string                `json:"id"`
	PONumber   string                `json:"po_number"`
	RequestID  string                `json:"request_id"`
	VendorName string                `json:"vendor_name"`
	Amount     string                `json:"amount"`
	Status     model.POStatus        `json:"status"`
	Items      []requestItemResponse `json:"items"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// handleFinanceQueue returns a bare array, unlike the paginated-style
// /requests/ envelope. Clients must tolerate both shapes.
func (s *Server) handleFinanceQueue(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	list, err := s.svc.ListForRole(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}

	search := r.URL.Query().Get("search")
	status := r.URL.Query().Get("status")
	list = filter.Requests(list, search, status)

	results := make([]requestResponse, 0, len(list))
	for _, request := range list {
		results = append(results, mapRequest(request))
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGeneratePO(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	po, err := s.svc.GeneratePO(r.Context(), user, chi.URLParam(r, "requestId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapPO(po))
}

func (s *Server) handleListPOs(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	list, err := s.svc.ListPurchaseOrders(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}

	search := r.URL.Query().Get("search")
	status := r.URL.Query().Get("status")
	list = filter.Orders(list, search, status)

	out := make([]poResponse, 0, len(list))
	for _, po := range list {
		out = append(out, mapPO(po))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPO(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	po, err := s.svc.GetPurchaseOrder(r.Context(), user, chi.URLParam(r, "poId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPO(po))
}

func (s *Server) handleAcknowledgePO(w http.ResponseWriter, r *http.Request) {
	s.handlePOTransition(w, r, s.svc.AcknowledgePO)
}

func (s *Server) handleFulfillPO(w http.ResponseWriter, r *http.Request) {
	s.handlePOTransition(w, r, s.svc.FulfillPO)
}

func (s *Server) handlePOTransition(w http.ResponseWriter, r *http.Request, advance func(context.Context, model.User, string) (model.PurchaseOrder, error)) {
	user, err := s.currentUser(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	po, err := advance(r.Context(), user, chi.URLParam(r, "poId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPO(po))
}

// Mapping

func mapUser(user model.User) userResponse {
	return userResponse{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
}

func mapRequest(request model.PurchaseRequest) requestResponse {
	items := make([]requestItemResponse, 0, len(request.Items))
	for _, item := range request.Items {
		items = append(items, requestItemResponse{
			ID:       item.ID,
			ItemName: item.ItemName,
			Price:    item.Price.String(),
			Quantity: item.Quantity,
			Total:    item.Total().String(),
		})
	}
	return requestResponse{
		ID:                request.ID,
		Title:             request.Title,
		Description:       request.Description,
		Amount:            request.Amount.String(),
		VendorName:        request.VendorName,
		Category:          request.Category,
		Urgency:           request.Urgency,
		Status:            request.Status,
		CreatedBy:         request.CreatedBy,
		CreatedByName:     request.CreatedByName,
		ProformaFile:      request.ProformaFile,
		ReceiptFile:       request.ReceiptFile,
		PurchaseOrderFile: request.PurchaseOrderFile,
		Items:             items,
		CreatedAt:         request.CreatedAt,
		UpdatedAt:         request.UpdatedAt,
	}
}

func mapPO(po model.PurchaseOrder) poResponse {
	items := make([]requestItemResponse, 0, len(po.Items))
	for _, item := range po.Items {
		items = append(items, requestItemResponse{
			ID:       item.ID,
			ItemName: item.ItemName,
			Price:    item.Price.String(),
			Quantity: item.Quantity,
			Total:    item.Total().String(),
		})
	}
	return poResponse{
		ID:         po.ID,
		PONumber:   po.PONumber,
		RequestID:  po.RequestID,
		VendorName: po.VendorName,
		Amount:     po.Amount.String(),
		Status:     po.Status,
		Items:      items,
		CreatedAt:  po.CreatedAt,
		UpdatedAt:  po.UpdatedAt,
	}
}

// Uploads

func (s *Server) saveUpload(r *http.Request, field, subdir string) (string, bool, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer file.Close()

	dir := filepath.Join(s.cfg.UploadDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}
	name := fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(header.Filename))
	dest := filepath.Join(dir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", false, err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return "", false, err
	}
	return dest, true, nil
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeAppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperr.CodeInvalidInput:
		status = http.StatusBadRequest
	case apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apperr.CodeForbidden:
		status = http.StatusForbidden
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConflict:
		status = http.StatusConflict
	}
	body := map[string]string{"error": string(appErr.Code), "detail": appErr.Message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	writeJSON(w, status, body)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
