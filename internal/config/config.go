package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Backends accepted by STORE_BACKEND.
const (
	BackendDynamo = "dynamo"
	BackendMemory = "memory"
)

// Config is the environment configuration shared by the api and worker binaries.
type Config struct {
	StoreBackend string

	DraftsTable      string
	OrdersTable      string
	InventoryTable   string
	BillsTable       string
	PaymentsTable    string
	LocksTable       string
	IdempotencyTable string

	EventsQueueURL   string
	MetricsNamespace string

	DefaultCurrency  string
	AllowBackorder   bool
	OperationTimeout time.Duration
	LockTTL          time.Duration
	IdempotencyTTL   time.Duration

	RunLocal bool
	Port     string
}

func Load() *Config {
	return &Config{
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendDynamo)),
		DraftsTable:      getEnv("DRAFTS_TABLE", "fulfillment-drafts"),
		OrdersTable:      getEnv("ORDERS_TABLE", "fulfillment-orders"),
		InventoryTable:   getEnv("INVENTORY_TABLE", "fulfillment-inventory"),
		BillsTable:       getEnv("BILLS_TABLE", "fulfillment-bills"),
		PaymentsTable:    getEnv("PAYMENTS_TABLE", "fulfillment-payments"),
		LocksTable:       getEnv("LOCKS_TABLE", "fulfillment-locks"),
		IdempotencyTable: getEnv("IDEMPOTENCY_TABLE", "fulfillment-idempotency"),
		EventsQueueURL:   getEnv("EVENTS_QUEUE_URL", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "Storefront/Fulfillment"),
		DefaultCurrency:  getEnv("DEFAULT_CURRENCY", "USD"),
		AllowBackorder:   getBool("ALLOW_BACKORDER", false),
		OperationTimeout: getDuration("OPERATION_TIMEOUT", 5*time.Second),
		LockTTL:          getDuration("LOCK_TTL", 30*time.Second),
		IdempotencyTTL:   getDuration("IDEMPOTENCY_TTL", 48*time.Hour),
		RunLocal:         getBool("RUN_LOCAL", false),
		Port:             getEnv("PORT", "8080"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getDuration accepts Go durations ("750ms") or whole seconds ("5").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
