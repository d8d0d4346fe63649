package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-wallet-web/gateway"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/guard"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/rs/zerolog/log"
)

// Login error codes carried in the login page URL. Only these map to text.
const (
	loginErrorInvalid     = "invalid_credentials"
	loginErrorRateLimited = "rate_limited"
	loginErrorUnavailable = "unavailable"
	loginErrorSSO         = "sso_failed"
	loginErrorInternal    = "internal"
)

// maxRetryAfterHint bounds the retry hint read back from the query.
const maxRetryAfterHint = 24 * time.Hour

var errSSOFailed = errors.New("single sign-on failed")

var loginErrorMessages = map[string]string{
	loginErrorInvalid:     apperrors.UserMessage(apperrors.ErrInvalidCredentials),
	loginErrorUnavailable: apperrors.UserMessage(apperrors.ErrServiceUnavailable),
	loginErrorSSO:         "Single sign-on was cancelled or failed. Please try again.",
	loginErrorInternal:    apperrors.UserMessage(apperrors.ErrInternal),
}

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName string
	Error   string
	Notice  string
	Email   string // Preserve email on error
	Next     string
	Remember bool
	ShowSSO  bool
}

// reasonMessages explain guard redirects on the login page.
var reasonMessages = map[string]string{
	guard.ReasonNoSession:   "Please sign in to continue.",
	guard.ReasonRevoked:     "Your session has ended. Please sign in again.",
	guard.ReasonUnavailable: "We could not confirm your session. Please sign in again.",
}

// LoginPageHandler displays the login page. Browsers that already hold a
// valid session go straight on.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	loginTmpl, err := ParseTemplate("login.html")
	if err != nil {
		panic("Failed to parse login template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.browser(w, r)
		if err != nil {
			log.Error().Err(err).Msg("could not resolve browser session")
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
			return
		}

		q := r.URL.Query()
		next := safeNext(q.Get("next"), s.landingPath)
		if b.store.IsValid() {
			redirectSuccess(w, r, next)
			return
		}

		data := LoginPageData{
			AppName:  s.config.GetAppName(),
			Error:    loginErrorMessage(q),
			Notice:   reasonMessages[q.Get("error_code")],
			Email:    q.Get("email"),
			Next:     next,
			Remember: q.Get("remember") != "",
			ShowSSO:  b.gateway.SupportsCodeFlow(),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := loginTmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render login template")
			http.Error(w, "Failed to render login page", http.StatusInternalServerError)
		}
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		email := r.PostFormValue("email")
		next := safeNext(r.PostFormValue("next"), s.landingPath)
		remember := r.PostFormValue("remember") != ""

		b, err := s.browser(w, r)
		if err != nil {
			log.Error().Err(err).Msg("could not resolve browser session")
			s.renderLoginError(w, r, apperrors.ErrInternal, loginForm{email: email, next: next, remember: remember})
			return
		}

		creds := gateway.Credentials{Identifier: email, Secret: r.PostFormValue("password")}
		sess, err := b.gateway.Authenticate(r.Context(), creds)
		if err != nil {
			s.renderLoginError(w, r, err, loginForm{email: email, next: next, remember: remember})
			return
		}

		var expires time.Time
		if remember {
			expires = s.rememberUntil(sess)
		}
		s.setBrowserCookie(w, r, b.id, expires)
		redirectSuccess(w, r, next)
	}
}

// LogoutHandler ends the browser's session and returns to the login page.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.browser(w, r)
		if err != nil {
			log.Error().Err(err).Msg("Logout: could not resolve browser session")
		} else {
			b.gateway.Logout(r.Context())
			// a remembered browser goes back to a session cookie
			s.setBrowserCookie(w, r, b.id, time.Time{})
		}
		redirectSuccess(w, r, s.loginPath)
	}
}

// loginForm is what the login page gets back after a failed submission.
type loginForm struct {
	email    string
	next     string
	remember bool
}

// renderLoginError redirects to the login page with an error code; the page
// maps the code to its own text.
func (s *Server) renderLoginError(w http.ResponseWriter, r *http.Request, err error, form loginForm) {
	q := url.Values{}
	code := loginErrorCode(err)
	q.Set("error", code)
	if retryAfter, ok := apperrors.RetryAfter(err); ok && code == loginErrorRateLimited {
		q.Set("retry_after", strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
	}
	if form.email != "" {
		q.Set("email", form.email)
	}
	if form.next != "" && form.next != s.landingPath {
		q.Set("next", form.next)
	}
	if form.remember {
		q.Set("remember", "1")
	}
	redirectSuccess(w, r, s.loginPath+"?"+q.Encode())
}

func loginErrorCode(err error) string {
	switch {
	case errors.Is(err, errSSOFailed):
		return loginErrorSSO
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return loginErrorInvalid
	case errors.Is(err, apperrors.ErrRateLimited):
		return loginErrorRateLimited
	case errors.Is(err, apperrors.ErrServiceUnavailable):
		return loginErrorUnavailable
	default:
		return loginErrorInternal
	}
}

// loginErrorMessage is the text for the error code in q. Unknown codes show
// nothing.
func loginErrorMessage(q url.Values) string {
	code := q.Get("error")
	if code != loginErrorRateLimited {
		return loginErrorMessages[code]
	}
	var retryAfter time.Duration
	if secs, err := strconv.Atoi(q.Get("retry_after")); err == nil && secs > 0 {
		retryAfter = maxRetryAfterHint
		if secs < int(maxRetryAfterHint/time.Second) {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return apperrors.UserMessage(&apperrors.RateLimitedError{RetryAfter: retryAfter})
}

// rememberUntil is when a remembered browser's cookie should lapse: with the
// session, or at the configured cap if that comes first.
func (s *Server) rememberUntil(sess session.Session) time.Time {
	until := time.Now().Add(s.config.GetRememberMeMaxAge())
	if sess.ExpiresAt != nil && sess.ExpiresAt.Before(until) {
		return *sess.ExpiresAt
	}
	return until
}
