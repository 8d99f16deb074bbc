package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/auth"
	"github.com/pliu/prompthub/internal/handlers"
	"github.com/pliu/prompthub/internal/middleware"
)

// Deps is everything the routes need.
type Deps struct {
	Sessions    *auth.Sessions
	Auth        *handlers.AuthHandler
	Projects    *handlers.ProjectHandler
	Files       *handlers.FileHandler
	Chat        *handlers.ChatHandler
	CORSOrigins []string
	Log         *zap.Logger
}

// New builds the application router. Every route names its guard here.
func New(d Deps) http.Handler {
	browser := middleware.RequireSession(d.Sessions)
	api := middleware.RequireAPISession(d.Sessions)

	r := mux.NewRouter()

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	// Auth
	r.HandleFunc("/register", d.Auth.RegisterPage).Methods(http.MethodGet)
	r.HandleFunc("/register", d.Auth.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", d.Auth.LoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", d.Auth.Login).Methods(http.MethodPost)
	r.HandleFunc("/logout", d.Auth.Logout).Methods(http.MethodGet)

	// Projects
	r.Handle("/", browser(http.HandlerFunc(d.Projects.Dashboard))).Methods(http.MethodGet)
	r.Handle("/projects/create", browser(http.HandlerFunc(d.Projects.Create))).Methods(http.MethodPost)
	r.Handle("/projects/{id:[0-9]+}", browser(http.HandlerFunc(d.Projects.Detail))).Methods(http.MethodGet)
	r.Handle("/projects/{id:[0-9]+}/update", browser(http.HandlerFunc(d.Projects.Update))).Methods(http.MethodPost)

	// Files
	r.Handle("/projects/{id:[0-9]+}/files", browser(http.HandlerFunc(d.Files.Upload))).Methods(http.MethodPost)
	r.Handle("/projects/{id:[0-9]+}/files", api(http.HandlerFunc(d.Files.List))).Methods(http.MethodGet)
	r.Handle("/projects/{id:[0-9]+}/files/{name}", browser(http.HandlerFunc(d.Files.Download))).Methods(http.MethodGet)

	// Chat API. rs/cors treats an empty origin list as "allow all", so the
	// handler is only installed when origins are configured.
	apiRouter := r.PathPrefix("/api").Subrouter()
	chatMethods := []string{http.MethodPost}
	if len(d.CORSOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{http.MethodPost},
			AllowedHeaders:   []string{"Content-Type", middleware.RequestIDHeader},
			AllowCredentials: true,
		})
		apiRouter.Use(c.Handler)
		chatMethods = append(chatMethods, http.MethodOptions)
	}
	apiRouter.Handle("/projects/{id:[0-9]+}/chat", api(http.HandlerFunc(d.Chat.Chat))).Methods(chatMethods...)

	// Wrapped outside the router so unmatched requests are logged too. Logging
	// sits outermost so a recovered panic still gets its 500 request line.
	return middleware.LoggingMiddleware(d.Log)(middleware.Recovery(d.Log)(r))
}
