package settings

import (
	"bufio"
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var Settings *AppSettings

func NewSettings() *AppSettings {
	settings := AppSettings{
		Domain:         getEnvOrDefault("PROCPILOT_DOMAIN", "localhost"),
		Port:           getEnvOrDefault("PROCPILOT_PORT", ":8080"),
		SQLiteDatabase: getEnvOrDefault("PROCPILOT_DB_PATH", "file:.///db.sqlite"),
		APIKey:         os.Getenv("PROCPILOT_API_KEY"),

		BaseDir: getEnvOrDefault("PROCPILOT_BASE_DIR", "/home/pm2"),
		PM2Bin:  getEnvOrDefault("PROCPILOT_PM2_BIN", "pm2"),

		CommandTimeout: getEnvSeconds("PROCPILOT_COMMAND_TIMEOUT", 30*time.Second),
		RetryDelay:     getEnvSeconds("PROCPILOT_RETRY_DELAY", time.Second),
		MaxRetries:     getEnvInt("PROCPILOT_MAX_RETRIES", 3),
		DeployTimeout:  getEnvSeconds("PROCPILOT_DEPLOY_TIMEOUT", 600*time.Second),
		LockStaleAfter: getEnvSeconds("PROCPILOT_LOCK_STALE_AFTER", 300*time.Second),

		AgentHost:    os.Getenv("PROCPILOT_AGENT_HOST"),
		AgentUser:    getEnvOrDefault("PROCPILOT_AGENT_USER", "pm2"),
		AgentKeyPath: os.Getenv("PROCPILOT_AGENT_KEY_PATH"),
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

func getEnvInt(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

// getEnvSeconds reads a duration env var given in whole seconds.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return time.Duration(n) * time.Second
}

type AppSettings struct {
	Domain         string
	Port           string
	SQLiteDatabase string
	APIKey         string

	// BaseDir is the root under which per-process trees and config
	// artifacts live: <BaseDir>/pm2-processes/<name> and
	// <BaseDir>/pm2-configs/<name>.config.js.
	BaseDir string
	PM2Bin  string

	CommandTimeout time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
	DeployTimeout  time.Duration
	LockStaleAfter time.Duration

	// Optional remote agent. When AgentHost is set the provisioning
	// pipeline runs on that host over SSH instead of locally.
	AgentHost    string
	AgentUser    string
	AgentKeyPath string
}

func (as *AppSettings) BaseURL() string {
	if as.Domain == "localhost" {
		return fmt.Sprintf("http://%s%s", as.Domain, as.Port)
	} else {
		return fmt.Sprintf("https://%s", as.Domain)
	}
}

func (as *AppSettings) ConfigDir() string {
	return path.Join(as.BaseDir, "pm2-configs")
}

func (as *AppSettings) ProcessesDir() string {
	return path.Join(as.BaseDir, "pm2-processes")
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

func ReadDotenv(path string) {
	re := regexp.MustCompile(`^[^0-9][A-Z0-9_]+=.+$`)
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 && line[0] != '#' && re.Match(line) {
			split := strings.Split(string(line), "=")
			name := strings.TrimSpace(split[0])
			value := strings.TrimSpace(split[1])
			value = strings.Trim(value, `"`)
			os.Setenv(name, value)
		}
	}
}
