package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DashboardPageData contains data for rendering dashboard pages
type DashboardPageData struct {
	AppName     string
	DisplayName string
	SubjectID   string
	IssuedAt    time.Time
	ExpiresAt   *time.Time
	Section     string
	LandingPath string
	EventsPath  string
	LoginPath   string
	LogoutPath  string
}

// DashboardHandler renders the protected landing page.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return s.dashboardPage("overview")
}

// SecurityHandler renders the sensitive security page. The guard has
// revalidated the session with the authority before this runs.
func (s *Server) SecurityHandler() http.HandlerFunc {
	return s.dashboardPage("security")
}

func (s *Server) dashboardPage(section string) http.HandlerFunc {
	tmpl, err := ParseTemplate("dashboard.html")
	if err != nil {
		panic("Failed to parse dashboard template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := browserFromContext(r.Context())
		if !ok {
			redirectSuccess(w, r, s.loginPath)
			return
		}
		sess, ok := b.store.Get()
		if !ok {
			redirectSuccess(w, r, s.loginPath)
			return
		}

		data := DashboardPageData{
			AppName:     s.config.GetAppName(),
			DisplayName: s.displayName(sess.SubjectID),
			SubjectID:   sess.SubjectID,
			IssuedAt:    sess.IssuedAt,
			ExpiresAt:   sess.ExpiresAt,
			Section:     section,
			LandingPath: s.landingPath,
			EventsPath:  s.landingPath + RouteEventsSuffix,
			LoginPath:   s.loginPath,
			LogoutPath:  RouteAuthLogout,
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Str("section", section).Msg("Failed to render dashboard template")
			http.Error(w, "Failed to render dashboard", http.StatusInternalServerError)
		}
	}
}

func (s *Server) displayName(subjectID string) string {
	if s.deps.Users == nil {
		return subjectID
	}
	user, err := s.deps.Users.GetByID(subjectID)
	if err != nil {
		return subjectID
	}
	return user.DisplayName()
}
