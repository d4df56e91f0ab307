package main

import (
	"flag"
	"log"
	"log/slog"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"inkwell/account"
	"inkwell/api"
	"inkwell/backoffice"
	"inkwell/common"
	"inkwell/config"
	"inkwell/database"
	"inkwell/email"
	"inkwell/metrics"
	"inkwell/ratelimit"
	"inkwell/site"
	"inkwell/store"
	"inkwell/tokens"
)

func main() {
	fake := flag.Int("fake", 0, "seed N fake users (and 5N posts) before serving")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for -fake")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	logger := common.InitLogger(cfg.IsProduction())

	db, err := common.ConnectDb(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}
	if *fake > 0 {
		if err := database.SeedFake(db, *fake, *fake*5, *seed); err != nil {
			log.Fatal("Failed to seed fake data: ", err)
		}
	}

	rdb, err := ratelimit.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to parse REDIS_URL: ", err)
	}
	limiter := ratelimit.New(rdb, cfg.TokenRateLimit, time.Minute)

	st := store.New(db)
	mail := email.NewService(cfg, email.NewMailer(cfg))
	svc := account.NewService(st, tokens.NewCodec(cfg.SecretKey), mail, cfg.AdminEmail)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(common.RequestID(), common.AccessLog(), metrics.Middleware(), common.Recovery())
	router.NoRoute(api.NotFound)
	router.NoMethod(api.NoMethod)

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(account.CookieOptions(0, cfg.IsProduction()))
	router.Use(sessions.Sessions("inkwell-session", sessionStore))

	accountModule := account.NewAccountModule(svc, limiter).SecureCookies(cfg.IsProduction())
	router.Use(accountModule.LoadPrincipal)
	accountModule.RegisterRoutes(router)

	apiModule := api.NewAPIModule(svc, api.PageSizes{
		Posts:    cfg.PostsPerPage,
		Comments: cfg.CommentsPerPage,
	}, limiter)
	apiModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(svc, site.Pages{
		Posts:     cfg.PostsPerPage,
		Comments:  cfg.CommentsPerPage,
		Followers: cfg.FollowersPerPage,
	})
	siteModule.RegisterRoutes(router)

	backofficeModule := backoffice.NewBackofficeModule(svc, cfg.CommentsPerPage)
	backofficeModule.RegisterRoutes(router)

	router.GET("/metrics", metrics.Handler())

	logger.Info("starting server", slog.String("port", cfg.Port), slog.String("db_driver", cfg.DBDriver))
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
