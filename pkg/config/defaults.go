package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "qrparking"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "5000"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPricePerHour        = 50
	DefaultReservationWindow   = 60 * time.Minute
	DefaultSlotSections        = "A,B,C"
	DefaultSlotsPerSection     = 6
	DefaultExpirySweepInterval = time.Duration(0)

	DefaultAdminName  = "Admin User"
	DefaultAdminEmail = "admin@parking.com"

	DefaultKafkaEnabled        = false
	DefaultKafkaLifecycleTopic = "parking.slot.lifecycle"

	DefaultPaginationLimit = 100
)
