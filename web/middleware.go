package web

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"gogreen/config"
	dbt "gogreen/db/db"
)

func CorsConfig() cors.Config {
	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConf.MaxAge = 1 * 3600 // 1 hours
	return corsConf
}

// limiterMiddleWare limits requests per client ip, e.g. "120-M".
func limiterMiddleWare(formatted string) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		log.Printf("Invalid rate limit %q, using 120-M: %v", formatted, err)
		rate, _ = limiter.NewRateFromFormatted("120-M")
	}
	store := memory.NewStore()
	instance := limiter.New(store, rate)
	return mgin.NewMiddleware(instance)
}

// UserDataLoaderInjectionMiddleware gives every request its own batching loader.
func UserDataLoaderInjectionMiddleware(wrapper dbt.UserDBWrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(dbt.DataLoaderKeyUserData), dbt.NewUserDataLoader(wrapper))
		c.Next()
	}
}

func setupMiddlewares(r *gin.Engine, cfg *config.Config) {
	r.Use(limiterMiddleWare(cfg.RateLimit))
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(cors.New(CorsConfig()))
	// websocket upgrades must not be wrapped by the gzip writer
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{"^/ws/"})))
	r.Use(secure.New(secure.Config{
		IsDevelopment:        cfg.Dev,
		STSSeconds:           31536000, // 1 year
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
	}))
}
