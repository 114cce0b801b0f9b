package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sandeepkv93/shooter-auth/internal/http/middleware"
	"github.com/sandeepkv93/shooter-auth/internal/http/response"
	"github.com/sandeepkv93/shooter-auth/internal/observability"
	"github.com/sandeepkv93/shooter-auth/internal/service"
)

type AuthHandler struct {
	authSvc service.AuthServiceInterface
}

func NewAuthHandler(authSvc service.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

type codeRequest struct {
	Email string `json:"email"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeCredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type codeSentResponse struct {
	Status string `json:"status"`
}

func (h *AuthHandler) RegisterCode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register_code", status, time.Since(start))
	}()

	var body codeRequest
	if !decodeBody(w, r, &body) {
		status = "failure"
		return
	}
	if err := h.authSvc.RequestRegistrationCode(r.Context(), body.Email); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.register.code", Subject: body.Email, Action: "request_code",
			Outcome: "failure", Reason: errorReason(err),
		})
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.register.code", Subject: body.Email, Action: "request_code", Outcome: "success",
	})
	response.JSON(w, r, http.StatusAccepted, codeSentResponse{Status: "code_sent"})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var body codeCredentialsRequest
	if !decodeBody(w, r, &body) {
		status = "failure"
		return
	}
	result, err := h.authSvc.Register(r.Context(), body.Email, body.Password, body.Code, clientIP(r))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.register", Subject: body.Email, Action: "register",
			Outcome: "failure", Reason: errorReason(err),
		})
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.register", Subject: result.Login, Action: "register", Outcome: "success",
	})
	response.JSON(w, r, http.StatusCreated, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var body credentialsRequest
	if !decodeBody(w, r, &body) {
		status = "failure"
		return
	}
	result, err := h.authSvc.Login(r.Context(), body.Email, body.Password, clientIP(r))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.login", Subject: body.Email, Action: "login",
			Outcome: "failure", Reason: errorReason(err),
		})
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.login", Subject: result.Login, Action: "login", Outcome: "success",
	})
	response.JSON(w, r, http.StatusOK, result)
}

// PasswordCode answers 202 whether or not the account exists.
func (h *AuthHandler) PasswordCode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_code", status, time.Since(start))
	}()

	var body codeRequest
	if !decodeBody(w, r, &body) {
		status = "failure"
		return
	}
	if err := h.authSvc.RequestPasswordReset(r.Context(), body.Email); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.password.code", Subject: body.Email, Action: "request_code",
			Outcome: "failure", Reason: errorReason(err),
		})
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.password.code", Subject: body.Email, Action: "request_code", Outcome: "accepted",
	})
	response.JSON(w, r, http.StatusAccepted, codeSentResponse{Status: "code_sent"})
}

func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_reset", status, time.Since(start))
	}()

	var body codeCredentialsRequest
	if !decodeBody(w, r, &body) {
		status = "failure"
		return
	}
	result, err := h.authSvc.ResetPassword(r.Context(), body.Email, body.Password, body.Code, clientIP(r))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.password.reset", Subject: body.Email, Action: "reset_password",
			Outcome: "failure", Reason: errorReason(err),
		})
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.password.reset", Subject: result.Login, Action: "reset_password", Outcome: "success",
	})
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return false
	}
	return true
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var cooldown *service.CooldownError
	switch {
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", retryAfterSeconds(cooldown.RetryAfter))
		response.Error(w, r, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", service.ErrTooManyAttempts.Error(), nil)
	case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, service.ErrAccountExists):
		response.Error(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidVerificationCode):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CODE", err.Error(), nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

// errorReason maps service errors to a fixed audit vocabulary.
func errorReason(err error) string {
	switch {
	case errors.Is(err, service.ErrTooManyAttempts):
		return "cooldown"
	case errors.Is(err, service.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, service.ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, service.ErrAccountExists):
		return "account_exists"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, service.ErrInvalidVerificationCode):
		return "invalid_code"
	default:
		return "internal_error"
	}
}

func retryAfterSeconds(d time.Duration) string {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
