package config

import "time"

// APIConfig holds runtime configuration for the authorization service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	RootActorID        string
	SystemActorID      string
	TemplateActorID    string
	RoleCacheTTL       time.Duration
	RateLimitPerMinute int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	DecisionBuffer     int
}

// LoadAPIConfig constructs an APIConfig from environment variables. The
// sentinel actor ids are deployment configuration, not compiled constants.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4400"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://gatehouse:gatehouse@db:5432/gatehouse?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		RootActorID:        GetString("ROOT_ACTOR_ID", "root"),
		SystemActorID:      GetString("SYSTEM_ACTOR_ID", "system"),
		TemplateActorID:    GetString("TEMPLATE_ACTOR_ID", "template"),
		RoleCacheTTL:       time.Duration(GetInt("ROLE_CACHE_TTL_SECONDS", 300)) * time.Second,
		RateLimitPerMinute: GetInt("RATE_LIMIT_PER_MINUTE", 600),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		DecisionBuffer:     GetInt("WS_DECISION_BUFFER", 100),
	}
}
