package settings

import (
	"bufio"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/slipway-ci/slipway/internal/security"
)

var Settings *AppSettings

func NewSettings() *AppSettings {
	settings := AppSettings{
		Port:              getEnvOrDefault("SLIPWAY_PORT", ":8080"),
		SQLiteDatabase:    getEnvOrDefault("SLIPWAY_DB_PATH", "file:.///slipway.sqlite"),
		PipelineDir:       getEnvOrDefault("SLIPWAY_PIPELINE_DIR", "pipelines"),
		WorkspaceDir:      getEnvOrDefault("SLIPWAY_WORKSPACE_DIR", "workspace"),
		LockDir:           getEnvOrDefault("SLIPWAY_LOCK_DIR", os.TempDir()),
		ConcurrencyPolicy: getEnvOrDefault("SLIPWAY_CONCURRENCY_POLICY", "queue"),
		ContainerEngine:   getEnvOrDefault("SLIPWAY_CONTAINER_ENGINE", "docker"),
		TestDatabaseURL:   os.Getenv("SLIPWAY_DATABASE_URL"),
		DeployToken:       security.Secret(os.Getenv("SLIPWAY_DEPLOY_TOKEN")),
		MaxQueuedRuns:     getEnvInt64OrDefault("SLIPWAY_MAX_QUEUED_RUNS", 20),
		RetentionDays:     getEnvInt64OrDefault("SLIPWAY_RETENTION_DAYS", 90),
		StageTimeout:      getEnvDurationOrDefault("SLIPWAY_STAGE_TIMEOUT", 30*time.Minute),
		LockTimeout:       getEnvDurationOrDefault("SLIPWAY_LOCK_TIMEOUT", 15*time.Minute),
	}
	if !strings.HasPrefix(settings.Port, ":") {
		settings.Port = ":" + settings.Port
	}
	return &settings
}

func getEnvOrDefault(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Fatal("invalid integer in env", "key", key, "value", value)
	}
	return n
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Fatal("invalid duration in env", "key", key, "value", value)
	}
	return d
}

type AppSettings struct {
	SQLiteDatabase    string
	Port              string
	PipelineDir       string
	WorkspaceDir      string
	LockDir           string
	ConcurrencyPolicy string
	ContainerEngine   string
	TestDatabaseURL   string
	DeployToken       security.Secret
	MaxQueuedRuns     int64
	RetentionDays     int64
	StageTimeout      time.Duration
	LockTimeout       time.Duration
}

func (as *AppSettings) SQLiteDbString(readonly bool) string {
	params := make(url.Values)
	params.Add("_journal_mode", "WAL")
	params.Add("_busy_timeout", "5000")
	params.Add("_synchronous", "NORMAL")
	params.Add("_cache_size", "-20000")
	params.Add("_foreign_keys", "ON")
	if readonly {
		params.Add("mode", "ro")
	} else {
		params.Add("_txlock", "IMMEDIATE")
		params.Add("mode", "rwc")
	}

	return as.SQLiteDatabase + "?" + params.Encode()
}

// ReadDotenv loads KEY=value lines from path into the process
// environment. A missing file is not an error so deployments can rely on
// real environment variables alone.
func ReadDotenv(path string) {
	re := regexp.MustCompile(`^[^0-9][A-Z0-9_]+=.+$`)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Fatal("opening dotenv", "err", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 && line[0] != '#' && re.Match(line) {
			name, value, _ := strings.Cut(string(line), "=")
			name = strings.TrimSpace(name)
			value = strings.TrimSpace(value)
			value = strings.Trim(value, `"`)
			os.Setenv(name, value)
		}
	}
}
