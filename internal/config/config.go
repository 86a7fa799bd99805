package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/immxrtalbeast/watchparty/internal/domain"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http_server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Upload   UploadConfig   `yaml:"upload"`
	Rooms    RoomsConfig    `yaml:"rooms"`
	Auth     AuthConfig     `yaml:"auth"`
	Broker   BrokerConfig   `yaml:"broker"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
}

type HTTPConfig struct {
	Address           string        `yaml:"address" env:"HTTP_ADDRESS"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER"`
	DSN             string        `yaml:"dsn" env:"DB_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type StorageConfig struct {
	Driver        string        `yaml:"driver" env:"STORAGE_DRIVER"`
	Path          string        `yaml:"path" env:"STORAGE_PATH"`
	MongoURI      string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string        `yaml:"mongo_database" env:"MONGO_DATABASE"`
	Bucket        string        `yaml:"bucket"`
	Timeout       time.Duration `yaml:"timeout"`
	CopyBuffer    int           `yaml:"copy_buffer"`
}

type UploadConfig struct {
	ChunkSize         int64         `yaml:"chunk_size"`
	MaxFileSize       int64         `yaml:"max_file_size"`
	DirectMaxFileSize int64         `yaml:"direct_max_file_size"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	AllowedMimeTypes  []string      `yaml:"allowed_mime_types"`
}

type RoomsConfig struct {
	DefaultMaxParticipants int           `yaml:"default_max_participants"`
	Retention              time.Duration `yaml:"retention"`
	ListLimit              int           `yaml:"list_limit"`
	CodeAttempts           int           `yaml:"code_attempts"`
	BlobCacheSize          int           `yaml:"blob_cache_size"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
}

type BrokerConfig struct {
	SendBuffer      int           `yaml:"send_buffer"`
	WriteWait       time.Duration `yaml:"write_wait"`
	PongWait        time.Duration `yaml:"pong_wait"`
	PingPeriod      time.Duration `yaml:"ping_period"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	HandleTimeout   time.Duration `yaml:"handle_timeout"`
	DisconnectGrace time.Duration `yaml:"disconnect_grace"`
}

type JanitorConfig struct {
	UploadExpirySpec string        `yaml:"upload_expiry_spec"`
	RoomCleanupSpec  string        `yaml:"room_cleanup_spec"`
	Timeout          time.Duration `yaml:"timeout"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env:"STUN_SERVERS" env-separator:","`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ReadHeaderTimeout == 0 {
		c.HTTP.ReadHeaderTimeout = 10 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 2 * time.Minute
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/media"
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "movies"
	}
	if c.Storage.MongoDatabase == "" {
		c.Storage.MongoDatabase = "watchparty"
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 10 * time.Second
	}
	if c.Storage.CopyBuffer == 0 {
		c.Storage.CopyBuffer = 1 << 20
	}

	if c.Upload.ChunkSize == 0 {
		c.Upload.ChunkSize = domain.DefaultChunkSize
	}
	if c.Upload.MaxFileSize == 0 {
		c.Upload.MaxFileSize = domain.MaxUploadSize
	}
	if c.Upload.DirectMaxFileSize == 0 {
		c.Upload.DirectMaxFileSize = 2 << 30
	}
	if c.Upload.SessionTTL == 0 {
		c.Upload.SessionTTL = domain.DefaultSessionTTL
	}
	if len(c.Upload.AllowedMimeTypes) == 0 {
		c.Upload.AllowedMimeTypes = domain.AllowedVideoMimeTypes
	}

	if c.Rooms.DefaultMaxParticipants == 0 {
		c.Rooms.DefaultMaxParticipants = domain.DefaultMaxParticipants
	}
	if c.Rooms.Retention == 0 {
		c.Rooms.Retention = 24 * time.Hour
	}
	if c.Rooms.ListLimit == 0 {
		c.Rooms.ListLimit = 10
	}
	if c.Rooms.CodeAttempts == 0 {
		c.Rooms.CodeAttempts = 5
	}
	if c.Rooms.BlobCacheSize == 0 {
		c.Rooms.BlobCacheSize = 256
	}

	if c.Broker.SendBuffer == 0 {
		c.Broker.SendBuffer = 64
	}
	if c.Broker.WriteWait == 0 {
		c.Broker.WriteWait = 10 * time.Second
	}
	if c.Broker.PongWait == 0 {
		c.Broker.PongWait = 60 * time.Second
	}
	if c.Broker.PingPeriod == 0 {
		c.Broker.PingPeriod = c.Broker.PongWait * 9 / 10
	}
	if c.Broker.MaxMessageSize == 0 {
		c.Broker.MaxMessageSize = 64 << 10
	}
	if c.Broker.HandleTimeout == 0 {
		c.Broker.HandleTimeout = 5 * time.Second
	}
	if c.Broker.DisconnectGrace == 0 {
		c.Broker.DisconnectGrace = 2 * time.Minute
	}

	if c.Janitor.UploadExpirySpec == "" {
		c.Janitor.UploadExpirySpec = "@every 10m"
	}
	if c.Janitor.RoomCleanupSpec == "" {
		c.Janitor.RoomCleanupSpec = "@hourly"
	}

	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
}
