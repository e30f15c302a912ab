package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/group"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type API struct {
	router      *mux.Router
	svc         *group.Service
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte
	logger      *zap.Logger
	server      *http.Server

	// fetchGuilds lists the guilds the token's user is in.
	fetchGuilds func(ctx context.Context, accessToken string) ([]DiscordGuild, error)
	fetchUser   func(ctx context.Context, accessToken string) (*DiscordUser, error)
}

func New(cfg *config.Config, svc *group.Service, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &API{
		router:    mux.NewRouter(),
		svc:       svc,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		logger:    logger,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}
	api.fetchGuilds = getDiscordGuilds
	api.fetchUser = getDiscordUser

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/api/health", a.handleHealth).Methods("GET")

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/user/guilds", a.handleUserGuilds).Methods("GET")
	protected.HandleFunc("/guilds/{guild_id}/groups", a.handleGuildGroups).Methods("GET")
	protected.HandleFunc("/guilds/{guild_id}/plans", a.handleGuildPlans).Methods("GET")

	groups := protected.PathPrefix("/groups/{group_id:[0-9]+}").Subrouter()
	groups.Use(a.groupMiddleware)

	groups.HandleFunc("/members", a.handleMembers).Methods("GET")
	groups.HandleFunc("/expenses", a.handleListExpenses).Methods("GET")
	groups.HandleFunc("/expenses", a.handleAddExpense).Methods("POST")
	groups.HandleFunc("/expenses/{expense_id:[0-9]+}", a.handleDeleteExpense).Methods("DELETE")
	groups.HandleFunc("/balances", a.handleBalances).Methods("GET")
	groups.HandleFunc("/simplify", a.handleSimplify).Methods("GET")
	groups.HandleFunc("/summary", a.handleSummary).Methods("GET")
	groups.HandleFunc("/settlements", a.handleRecordSettlement).Methods("POST")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// When AllowedOrigins is "*", AllowCredentials must stay false
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Start serves until Shutdown is called.
func (a *API) Start() error {
	a.server = &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("API server listening", zap.String("addr", "http://"+a.config.WebBind))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
