package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket   string        `yaml:"minio_bucket"`
	App           App           `yaml:"app"`
	DB            *sql.DB       `yaml:"db"`
	Queue         *RabbitMQ     `yaml:"rabbitmq"`
	Storage       *minio.Client `yaml:"storage"`
	Cache         *redis.Client `yaml:"cache"`
	Server        Server        `yaml:"server"`
	Plex          Plex          `yaml:"plex"`
	Monitor       Monitor       `yaml:"monitor"`
	Notifications Notifications `yaml:"notifications"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

type Plex struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Monitor holds the session-tracking thresholds. Intervals are in seconds
// in the config file and converted to durations at load time.
type Monitor struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	BufferThreshold int           `yaml:"buffer_threshold"`
	BufferWait      time.Duration `yaml:"buffer_wait"`
	WatchedPercent  int           `yaml:"watched_percent"`
	VideoLogging    bool          `yaml:"video_logging"`
	MusicLogging    bool          `yaml:"music_logging"`
	IgnoreInterval  time.Duration `yaml:"ignore_interval"`
	ResolveIP       bool          `yaml:"resolve_ip"`
}

type Notifications struct {
	Webhooks    []string      `yaml:"webhooks"`
	QueueBuffer int           `yaml:"queue_buffer"`
	DedupTTL    time.Duration `yaml:"dedup_ttl"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("monitor.poll_interval", 15)
	viper.SetDefault("monitor.buffer_threshold", 3)
	viper.SetDefault("monitor.buffer_wait", 900)
	viper.SetDefault("monitor.watched_percent", 85)
	viper.SetDefault("monitor.video_logging", true)
	viper.SetDefault("monitor.music_logging", true)
	viper.SetDefault("notifications.queue_buffer", 256)
	viper.SetDefault("notifications.dedup_ttl", 86400)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Plex: Plex{
			URL:   viper.GetString("plex.url"),
			Token: viper.GetString("plex.token"),
		},
		Monitor: Monitor{
			PollInterval:    time.Duration(viper.GetInt("monitor.poll_interval")) * time.Second,
			BufferThreshold: viper.GetInt("monitor.buffer_threshold"),
			BufferWait:      time.Duration(viper.GetInt("monitor.buffer_wait")) * time.Second,
			WatchedPercent:  viper.GetInt("monitor.watched_percent"),
			VideoLogging:    viper.GetBool("monitor.video_logging"),
			MusicLogging:    viper.GetBool("monitor.music_logging"),
			IgnoreInterval:  time.Duration(viper.GetInt("monitor.ignore_interval")) * time.Second,
			ResolveIP:       viper.GetBool("monitor.resolve_ip"),
		},
		Notifications: Notifications{
			Webhooks:    viper.GetStringSlice("notifications.webhooks"),
			QueueBuffer: viper.GetInt("notifications.queue_buffer"),
			DedupTTL:    time.Duration(viper.GetInt("notifications.dedup_ttl")) * time.Second,
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
		Cache:   redisClient,
	}, nil
}
