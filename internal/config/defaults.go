package config

// Supported record store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

const (
	defaultConfigPath        = "~/.config/icpquery/config.toml"
	projectConfigName        = "icpquery.toml"
	defaultDataDir           = "~/.local/share/icpquery"
	defaultLogDir            = "~/.local/share/icpquery/logs"
	defaultSQLitePath        = "~/.local/share/icpquery/records.db"
	defaultLockFile          = "~/.local/share/icpquery/icpquery.lock"
	defaultTemplateDir       = "data/medium"
	defaultSimilarityModel   = "data/siamese.onnx"
	defaultAPIBind           = "127.0.0.1:8000"
	defaultPortalURL         = "https://beian.miit.gov.cn/"
	defaultAPIBaseURL        = "https://hlwicpfwc.miit.gov.cn/icpproject_query/api"
	defaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/101.0.4951.41 Safari/537.36 Edg/101.0.1210.32"
	defaultAuthSecret        = "testtest"
	defaultPageSize          = 40
	defaultServiceType       = 1
	defaultRequestsPerSecond = 2
	defaultBurst             = 2
	defaultTokenTTLSeconds   = 240
	defaultTimeoutSeconds    = 20
	defaultCanvasWidth       = 500
	defaultCanvasHeight      = 190
	defaultThreshold         = 0.7
	defaultRetryIntervalMs   = 1000
	defaultDetectorURL       = "http://127.0.0.1:9898"
	defaultDetectorTimeout   = 10
	defaultSimilarityBackend = "cpu"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultStoreDriver       = StoreSQLite
	defaultMaxConns          = 5
	defaultMaxOverflow       = 10
	defaultListPageSize      = 50
	defaultTracingExporter   = "stdout"
	defaultServiceName       = "icpquery"
	defaultMetricsPath       = "/metrics"
)

// defaultGlyphOffsets are the x positions of the four glyphs in the prompt strip.
var defaultGlyphOffsets = []int{165, 200, 231, 265}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Environment: "development",
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
			LockFile: defaultLockFile,
		},
		Registry: Registry{
			PortalURL:         defaultPortalURL,
			APIBaseURL:        defaultAPIBaseURL,
			UserAgent:         defaultUserAgent,
			AuthSecret:        defaultAuthSecret,
			PageSize:          defaultPageSize,
			ServiceType:       defaultServiceType,
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
			TokenTTLSeconds:   defaultTokenTTLSeconds,
			TimeoutSeconds:    defaultTimeoutSeconds,
		},
		Captcha: Captcha{
			TemplateDir:         defaultTemplateDir,
			CanvasWidth:         defaultCanvasWidth,
			CanvasHeight:        defaultCanvasHeight,
			GlyphOffsets:        append([]int(nil), defaultGlyphOffsets...),
			Threshold:           defaultThreshold,
			RetryIntervalMillis: defaultRetryIntervalMs,
			DetectorURL:         defaultDetectorURL,
			DetectorTimeout:     defaultDetectorTimeout,
			SimilarityModel:     defaultSimilarityModel,
			SimilarityBackend:   defaultSimilarityBackend,
		},
		Store: Store{
			Driver:       defaultStoreDriver,
			SQLitePath:   defaultSQLitePath,
			MaxConns:     defaultMaxConns,
			MaxOverflow:  defaultMaxOverflow,
			ListPageSize: defaultListPageSize,
		},
		// Format is resolved in normalize so production defaults to JSON.
		Logging: Logging{
			Level: defaultLogLevel,
		},
		Tracing: Tracing{
			Exporter:    defaultTracingExporter,
			ServiceName: defaultServiceName,
			SampleRate:  1,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
	}
}
