// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

/*
HTTP delivery layer for the auth domain.

It implements the gateway for the authentication lifecycle, from account
creation to passwordless sign-in and session teardown.

# Architecture

The handler acts as a thin mediation layer between the web and the domain
service:
  - Protocol: Standard RESTful JSON interface.
  - Security: Owns the session cookie; the service stays cookie-agnostic.
  - Verification: Enforces strict input validation before calling [Service].

This layer is strictly responsible for transport concerns (status codes,
headers, cookies, JSON).
*/

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumera-id/lumera/internal/platform/apperr"
	"github.com/lumera-id/lumera/internal/platform/constants"
	"github.com/lumera-id/lumera/internal/platform/middleware"
	requestutil "github.com/lumera-id/lumera/internal/platform/request"
	"github.com/lumera-id/lumera/internal/platform/respond"
	"github.com/lumera-id/lumera/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST /register            : Password sign-up, signs the user in.
//   - POST /login               : Password sign-in.
//   - POST /logout              : Idempotent sign-out.
//   - GET  /session             : Resolves the current session to its user.
//   - POST /magic-link          : Requests a passwordless sign-in email.
//   - GET  /magic-link/verify   : Link target; consumes the token.
//   - POST /change-password     : Protected credential rotation.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/logout", handler.logout)
	router.Get("/session", handler.session)
	router.Post("/magic-link", handler.requestMagicLink)
	router.Get("/magic-link/verify", handler.verifyMagicLink)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/change-password", handler.changePassword)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Description: Validates input, persists a new account, and establishes a
session for it in one step.

Request:
  - Body: registerRequest (Email, Password, DisplayName)

Response:
  - 201: User: Created profile; session cookie set
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: DUPLICATE_EMAIL: Address already registered
  - 422: WEAK_PASSWORD: Password below policy
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MaxLen(FieldDisplayName, input.DisplayName, 120)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.SignUp(request.Context(), SignUpInput{
		Email:       input.Email,
		DisplayName: input.DisplayName,
		Password:    input.Password,
		Client:      clientInfo(request),
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setSessionCookie(writer, session)
	respond.Created(writer, map[string]any{FieldUser: session.User})
}

/*
Login authenticates a user with email and password.

POST /api/v1/auth/login

Description: Verifies credentials and establishes a session. The failure
response is byte-identical for unknown addresses and wrong passwords.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: User: Profile; session cookie set
  - 401: INVALID_CREDENTIALS: Generic authentication failure
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.SignIn(request.Context(), SignInInput{
		Email:    input.Email,
		Password: input.Password,
		Client:   clientInfo(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setSessionCookie(writer, session)
	respond.OK(writer, map[string]any{FieldUser: session.User})
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Description: Revokes the session token (if present) and clears the cookie.
Idempotent: succeeds with or without a live session.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.SessionCookieName)

	if err == nil && cookie.Value != "" {
		if revokeErr := handler.authService.SignOut(request.Context(), cookie.Value); revokeErr != nil {
			respond.Error(writer, request, revokeErr)
			return
		}
	}

	clearSessionCookie(writer)
	respond.NoContent(writer)
}

/*
Session resolves the current session cookie to its user.

GET /api/v1/auth/session

Response:
  - 200: User: The signed-in user's profile
  - 401: SESSION_INVALID: No live session on the request
*/
func (handler *Handler) session(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.SessionCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.SessionInvalid())
		return
	}

	user, err := handler.authService.GetSession(request.Context(), cookie.Value)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldUser: user})
}

/*
RequestMagicLink starts the passwordless sign-in flow.

POST /api/v1/auth/magic-link

Description: Issues a single-use link and hands it to the mail transport.
The response never reveals whether the address has an account.

Request:
  - Body: magicLinkRequest (Email)

Response:
  - 202: Accepted: Link issued (generic message)
  - 400: ErrInvalidJSON: Invalid email format
  - 502: DELIVERY_FAILED: Eager dispatch mode only
*/
func (handler *Handler) requestMagicLink(writer http.ResponseWriter, request *http.Request) {
	var input magicLinkRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestMagicLink(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusAccepted, respond.SuccessEnvelope{Data: map[string]string{
		FieldMessage: "If this address can sign in, a link is on its way.",
	}})
}

/*
VerifyMagicLink consumes a magic-link token from the emailed URL.

GET /api/v1/auth/magic-link/verify?token=...

Description: Exchanges the single-use token for a session. Replayed,
expired, and unknown tokens each return their own 401 code.

Response:
  - 200: User: Signed-in profile; session cookie set
  - 401: TOKEN_INVALID | TOKEN_ALREADY_USED | TOKEN_EXPIRED
*/
func (handler *Handler) verifyMagicLink(writer http.ResponseWriter, request *http.Request) {
	token := request.URL.Query().Get(FieldToken)
	if token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldToken, "is required"))
		return
	}

	session, err := handler.authService.ConsumeMagicLink(request.Context(), token, clientInfo(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setSessionCookie(writer, session)
	respond.OK(writer, map[string]any{FieldUser: session.User})
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password, rotates the hash, and revokes
every other session so other devices must sign in again.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Success: Password changed
  - 401: INVALID_CREDENTIALS: Current password wrong, or session invalid
  - 422: WEAK_PASSWORD: New password below policy
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	cookie, err := request.Cookie(constants.SessionCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.SessionInvalid())
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(
		request.Context(),
		userID,
		input.CurrentPassword,
		input.NewPassword,
		cookie.Value,
	)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password changed successfully",
	})
}

// # Cookie Helpers

// setSessionCookie installs the opaque bearer token as an HttpOnly cookie.
func setSessionCookie(writer http.ResponseWriter, session *AuthSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    session.Token,
		Path:     constants.SessionCookiePath,
		Expires:  session.ExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie on the client.
func clearSessionCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "",
		Path:     constants.SessionCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientInfo extracts the request metadata recorded on sessions.
func clientInfo(request *http.Request) ClientInfo {
	return ClientInfo{
		UserAgent: request.UserAgent(),
		IPAddress: middleware.RealIP(request),
	}
}
