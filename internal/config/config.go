package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DataDir       string

	StorageBackend     string
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
	SupabasePublic     bool
	SignedURLExpiry    int

	CheckpointBackend string
	CheckpointPath    string
	CheckpointKey     string
	ReportPath        string
	ManifestPath      string
	ScreenshotDir     string

	CaptureMode      string
	BrowserDataDir   string
	OrderURLTemplate string
	OrdersPageURL    string
	FullPage         bool

	UploadMaxRetries  int
	UploadParallelism int
	UploadBaseDelayMs int

	TaskMaxRetries int
}

// fileValues mirrors the optional orderproof.yaml layout. Environment
// variables always win over file values.
type fileValues struct {
	AppEnv   string `yaml:"app_env"`
	HTTPAddr string `yaml:"http_addr"`
	DataDir  string `yaml:"data_dir"`
	Redis    struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Storage struct {
		Backend         string `yaml:"backend"`
		URL             string `yaml:"url"`
		ServiceKey      string `yaml:"service_key"`
		Bucket          string `yaml:"bucket"`
		Public          *bool  `yaml:"public"`
		SignedURLExpiry int    `yaml:"signed_url_expiry"`
	} `yaml:"storage"`
	Checkpoint struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		Key     string `yaml:"key"`
	} `yaml:"checkpoint"`
	Report struct {
		Path         string `yaml:"path"`
		ManifestPath string `yaml:"manifest_path"`
	} `yaml:"report"`
	Capture struct {
		Mode             string `yaml:"mode"`
		ScreenshotDir    string `yaml:"screenshot_dir"`
		BrowserDataDir   string `yaml:"browser_data_dir"`
		OrderURLTemplate string `yaml:"order_url_template"`
		OrdersPageURL    string `yaml:"orders_page_url"`
		FullPage         *bool  `yaml:"full_page"`
	} `yaml:"capture"`
	Upload struct {
		MaxRetries  int `yaml:"max_retries"`
		Parallelism int `yaml:"parallelism"`
		BaseDelayMs int `yaml:"base_delay_ms"`
	} `yaml:"upload"`
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Load reads .env (if present), then the YAML file at path, falling back to
// ORDERPROOF_CONFIG and ./orderproof.yaml, then environment variables.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	if path == "" {
		path = getenv("ORDERPROOF_CONFIG", "orderproof.yaml")
	}
	return LoadFile(path)
}

// LoadFile builds a Config from the given YAML file and the environment.
// A missing file is not an error.
func LoadFile(path string) (Config, error) {
	var fv fileValues
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &fv); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	dataDir := getenv("DATA_DIR", orString(fv.DataDir, "./data"))
	cfg := Config{
		AppEnv:        getenv("APP_ENV", orString(fv.AppEnv, "development")),
		HTTPAddr:      getenv("HTTP_ADDR", orString(fv.HTTPAddr, ":8081")),
		RedisAddr:     getenv("REDIS_ADDR", orString(fv.Redis.Addr, "127.0.0.1:6379")),
		RedisPassword: getenv("REDIS_PASSWORD", fv.Redis.Password),
		DataDir:       dataDir,

		StorageBackend:     getenv("STORAGE_BACKEND", orString(fv.Storage.Backend, "supabase")),
		SupabaseURL:        getenv("SUPABASE_URL", fv.Storage.URL),
		SupabaseServiceKey: getenv("SUPABASE_SERVICE_ROLE_KEY", fv.Storage.ServiceKey),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", orString(fv.Storage.Bucket, "order-evidence")),
		SupabasePublic:     getenvBool("SUPABASE_PUBLIC_BUCKET", orBool(fv.Storage.Public, false)),
		SignedURLExpiry:    getenvInt("SIGNED_URL_EXPIRY", orInt(fv.Storage.SignedURLExpiry, 60*60*24*365)),

		CheckpointBackend: getenv("CHECKPOINT_BACKEND", orString(fv.Checkpoint.Backend, "file")),
		CheckpointPath:    getenv("CHECKPOINT_PATH", orString(fv.Checkpoint.Path, "processed_orders.json")),
		CheckpointKey:     getenv("CHECKPOINT_KEY", orString(fv.Checkpoint.Key, "orderproof:checkpoint")),
		ReportPath:        getenv("REPORT_PATH", orString(fv.Report.Path, "order_report.xlsx")),
		ManifestPath:      getenv("MANIFEST_PATH", orString(fv.Report.ManifestPath, "failed_orders.txt")),
		ScreenshotDir:     getenv("SCREENSHOT_DIR", orString(fv.Capture.ScreenshotDir, "screenshots")),

		CaptureMode:      getenv("CAPTURE_MODE", orString(fv.Capture.Mode, "manual")),
		BrowserDataDir:   getenv("BROWSER_DATA_DIR", orString(fv.Capture.BrowserDataDir, "browser_data")),
		OrderURLTemplate: getenv("ORDER_URL_TEMPLATE", fv.Capture.OrderURLTemplate),
		OrdersPageURL:    getenv("ORDERS_PAGE_URL", fv.Capture.OrdersPageURL),
		FullPage:         getenvBool("CAPTURE_FULL_PAGE", orBool(fv.Capture.FullPage, false)),

		UploadMaxRetries:  getenvInt("UPLOAD_MAX_RETRIES", orInt(fv.Upload.MaxRetries, 3)),
		UploadParallelism: getenvInt("UPLOAD_PARALLELISM", orInt(fv.Upload.Parallelism, 3)),
		UploadBaseDelayMs: getenvInt("UPLOAD_BASE_DELAY_MS", orInt(fv.Upload.BaseDelayMs, 1000)),

		TaskMaxRetries: getenvInt("TASK_MAX_RETRIES", 3),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case "supabase", "local":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be supabase or local, got %q", c.StorageBackend)
	}
	switch c.CheckpointBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("CHECKPOINT_BACKEND must be file or redis, got %q", c.CheckpointBackend)
	}
	switch c.CaptureMode {
	case "manual", "auto":
	default:
		return fmt.Errorf("CAPTURE_MODE must be manual or auto, got %q", c.CaptureMode)
	}
	if c.UploadMaxRetries < 1 {
		return fmt.Errorf("UPLOAD_MAX_RETRIES must be at least 1")
	}
	if c.UploadParallelism < 1 {
		return fmt.Errorf("UPLOAD_PARALLELISM must be at least 1")
	}
	if c.CaptureMode == "auto" && c.OrderURLTemplate == "" {
		return fmt.Errorf("ORDER_URL_TEMPLATE is required when CAPTURE_MODE=auto")
	}
	return nil
}
