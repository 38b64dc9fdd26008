package config

import "time"

// ServerConfig holds the Turnstile solver API server settings.
type ServerConfig struct {
	Host string
	Port int

	Headless  bool
	UserAgent string
	Debug     bool
	Browser   string
	Threads   int
	PageCount int
	ProxyURL  string

	AcquireTimeout time.Duration
	PollAttempts   int
	PollInterval   time.Duration

	// Phone verification API (disabled when Key is empty).
	PhoneProvider string
	PhoneAPIKey   string

	MetricsEnabled bool
}

// MaxTasks is the admission ceiling: one in-flight task per pooled page.
func (c *ServerConfig) MaxTasks() int {
	return c.Threads * c.PageCount
}

// LoadServer reads the server configuration from the environment.
func LoadServer() *ServerConfig {
	return &ServerConfig{
		Host:           getenv("HOST", "127.0.0.1"),
		Port:           envInt("PORT", 8000),
		Headless:       envBool("HEADLESS", true),
		UserAgent:      getenv("USER_AGENT", ""),
		Debug:          envBool("DEBUG", false),
		Browser:        getenv("BROWSER_TYPE", "firefox"),
		Threads:        envInt("THREADS", 1),
		PageCount:      envInt("PAGES_PER_THREAD", 1),
		ProxyURL:       getenv("PROXY_URL", ""),
		AcquireTimeout: envSec("ACQUIRE_TIMEOUT_SEC", 30),
		PollAttempts:   envInt("POLL_ATTEMPTS", 60),
		PollInterval:   time.Duration(envInt("POLL_INTERVAL_MS", 500)) * time.Millisecond,
		PhoneProvider:  getenv("PHONE_PROVIDER", "sms-activate"),
		PhoneAPIKey:    getenv("PHONE_API_KEY", ""),
		MetricsEnabled: envBool("METRICS_ENABLED", true),
	}
}

// LoginConfig holds the bulk autologin driver settings.
type LoginConfig struct {
	SolverURL    string
	CollectorURL string
	BackendURL   string
	Sitekey      string

	DataDir    string
	StateFile  string
	EmailsFile string
	ProxyFile  string

	TorControlAddr string
	TorPassword    string
	TorSocksAddr   string

	MaxTries      int
	CookieTimeout time.Duration
	SMSTimeout    time.Duration

	// Result sink selection: collector, jsonl, redis, mysql
	// (comma-separated for multiple).
	Sinks string

	RedisAddr   string
	RedisPass   string
	RedisDB     int
	RedisPrefix string

	MySQLDSN   string
	MySQLTable string
}

// LoadLogin reads the autologin configuration from the environment.
func LoadLogin() *LoginConfig {
	dataDir := getenv("DATA_DIR", "data")
	return &LoginConfig{
		SolverURL:      getenv("SOLVER_URL", "http://127.0.0.1:8000"),
		CollectorURL:   getenv("COLLECTOR_URL", ""),
		BackendURL:     getenv("BACKEND_URL", "https://backend.wplace.live"),
		Sitekey:        getenv("TURNSTILE_SITEKEY", "0x4AAAAAABpHqZ-6i7uL0nmG"),
		DataDir:        dataDir,
		StateFile:      getenv("STATE_FILE", dataDir+"/data.json"),
		EmailsFile:     getenv("EMAILS_FILE", dataDir+"/emails.txt"),
		ProxyFile:      getenv("PROXY_FILE", dataDir+"/proxies.txt"),
		TorControlAddr: getenv("TOR_CONTROL_ADDR", "127.0.0.1:9051"),
		TorPassword:    getenv("TOR_PASSWORD", ""),
		TorSocksAddr:   getenv("TOR_SOCKS_ADDR", "127.0.0.1:9050"),
		MaxTries:       envInt("MAX_TRIES", 3),
		CookieTimeout:  envSec("COOKIE_TIMEOUT_SEC", 180),
		SMSTimeout:     envSec("SMS_TIMEOUT_SEC", 120),
		Sinks:          getenv("COOKIES_SINK", "collector"),
		RedisAddr:      getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:      getenv("REDIS_PASSWORD", ""),
		RedisDB:        envInt("REDIS_DB", 0),
		RedisPrefix:    getenv("REDIS_PREFIX", "wplace:cookies"),
		MySQLDSN:       getenv("MYSQL_DSN", ""),
		MySQLTable:     getenv("MYSQL_TABLE", "account_cookies"),
	}
}
