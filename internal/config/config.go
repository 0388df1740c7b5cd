package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds node-wide settings for the download queue, federation
// subsystem, NAT/UPnP manager, and self-update flow. Load from environment
// and/or a .env file (call LoadEnvFile before Load to pick one up).
type Config struct {
	// HTTP
	Port int // e.g. 3000

	// Paths
	DownloadRoot string // e.g. /var/lib/animedb/downloads — one subdir per job
	MediaRoot    string // base for library paths that are given as relative
	DBPath       string // sqlite file, e.g. /var/lib/animedb/animedb.db

	// Identity / branding
	InstanceName string // shown to peers in /federation/library

	// Downloader
	OutputFormat   string // container extension the external tool is told to produce; default "mkv"
	DownloaderTool string // path/name of the subprocess invoked per job; default "yt-dlp"

	// NAT/UPnP
	ExternalURL     string // manual override; non-empty disables UPnP entirely
	UPnPPort        int    // internal+external port to map; default = Port
	UPnPLeaseSecs   int    // lease TTL in seconds; 0 = permanent (no renewal loop)
	UPnPDescription string // port-mapping description string

	// Federation
	AuthDisabled bool // when true, session middleware allows all requests (dev/test only)

	// Peer-Sync Scheduler
	PeerSyncIntervalMinutes int // clamped to [5, 1440] by Load

	// Media indexer notification (external collaborator; single outbound GET)
	IndexerURL   string
	IndexerToken string

	// Self-update
	DataDir         string // holds the rollback marker, alongside DBPath
	BackendDir      string // live backend dist directory, swapped/backed-up by an update
	FrontendDir     string // live frontend dist directory, swapped/backed-up by an update
	BuildSHAFile    string // path to the file recording the currently-deployed build SHA
	UpdateSourceURL string // tarball source for POST /system/update
}

// Load reads configuration from the environment. Defaults are applied for
// anything unset or out of range.
func Load() *Config {
	c := &Config{
		Port:                    getEnvInt("ANIMEDB_PORT", 3000),
		DownloadRoot:            getEnv("ANIMEDB_DOWNLOAD_ROOT", "./data/downloads"),
		MediaRoot:               getEnv("ANIMEDB_MEDIA_ROOT", "./data/media"),
		DBPath:                  getEnv("ANIMEDB_DB_PATH", "./data/animedb.db"),
		InstanceName:            getEnv("ANIMEDB_INSTANCE_NAME", "AnimeDB Node"),
		OutputFormat:            getEnv("ANIMEDB_OUTPUT_FORMAT", "mkv"),
		DownloaderTool:          getEnv("ANIMEDB_DOWNLOADER_TOOL", "yt-dlp"),
		ExternalURL:             os.Getenv("ANIMEDB_EXTERNAL_URL"),
		UPnPPort:                getEnvInt("ANIMEDB_UPNP_PORT", 0),
		UPnPLeaseSecs:           getEnvInt("ANIMEDB_UPNP_LEASE_SECONDS", 3600),
		UPnPDescription:         getEnv("ANIMEDB_UPNP_DESCRIPTION", "AnimeDB"),
		AuthDisabled:            getEnvBool("ANIMEDB_AUTH_DISABLED", false),
		PeerSyncIntervalMinutes: getEnvInt("ANIMEDB_PEER_SYNC_INTERVAL_MINUTES", 15),
		IndexerURL:              os.Getenv("ANIMEDB_INDEXER_URL"),
		IndexerToken:            os.Getenv("ANIMEDB_INDEXER_TOKEN"),
		DataDir:                 getEnv("ANIMEDB_DATA_DIR", "./data"),
		BackendDir:              getEnv("ANIMEDB_BACKEND_DIR", "./dist/backend"),
		FrontendDir:             getEnv("ANIMEDB_FRONTEND_DIR", "./dist/frontend"),
		BuildSHAFile:            getEnv("ANIMEDB_BUILD_SHA_FILE", "./data/build-sha.txt"),
		UpdateSourceURL:         os.Getenv("ANIMEDB_UPDATE_SOURCE_URL"),
	}
	if c.Port <= 0 {
		c.Port = 3000
	}
	if c.UPnPPort <= 0 {
		c.UPnPPort = c.Port
	}
	if c.UPnPLeaseSecs < 0 {
		c.UPnPLeaseSecs = 0
	}
	if c.PeerSyncIntervalMinutes < 5 {
		c.PeerSyncIntervalMinutes = 5
	} else if c.PeerSyncIntervalMinutes > 1440 {
		c.PeerSyncIntervalMinutes = 1440
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "mkv"
	}
	return c
}

// UPnPLeaseTTL returns UPnPLeaseSecs as a time.Duration (0 = permanent mapping).
func (c *Config) UPnPLeaseTTL() time.Duration {
	return time.Duration(c.UPnPLeaseSecs) * time.Second
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}
