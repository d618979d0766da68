package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret = "JWT_SECRET"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvPricePerHour        = "PRICE_PER_HOUR"
	EnvReservationWindow   = "RESERVATION_WINDOW"
	EnvSlotSections        = "SLOT_SECTIONS"
	EnvSlotsPerSection     = "SLOTS_PER_SECTION"
	EnvExpirySweepInterval = "EXPIRY_SWEEP_INTERVAL"

	EnvAdminName     = "ADMIN_NAME"
	EnvAdminEmail    = "ADMIN_EMAIL"
	EnvAdminPassword = "ADMIN_PASSWORD"

	EnvKafkaEnabled        = "KAFKA_ENABLED"
	EnvKafkaLifecycleTopic = "KAFKA_LIFECYCLE_TOPIC"
)
