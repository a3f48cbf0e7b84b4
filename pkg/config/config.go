package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       Server      `mapstructure:"server"`
	Postgres     Postgres    `mapstructure:"postgres"`
	Broker       Broker      `mapstructure:"broker"`
	Relay        RelayConfig `mapstructure:"relay"`
	Reservation  Reservation `mapstructure:"reservation"`
	Saga         Saga        `mapstructure:"saga"`
	Breaker      Breaker     `mapstructure:"breaker"`
	Payment      Payment     `mapstructure:"payment"`
	HTTPClient   HTTPClient  `mapstructure:"httpClient"`
	LoggingLevel string      `mapstructure:"logging-level"`
}

type Server struct {
	Port      string `mapstructure:"port"`
	BodyLimit int    `mapstructure:"body_limit"`
}

type Postgres struct {
	ConnString     string `mapstructure:"conn_string"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type Broker struct {
	Kafka Kafka `mapstructure:"kafka"`
}

type Kafka struct {
	Brokers       string `mapstructure:"brokers"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
	ConsumerGroup string `mapstructure:"consumerGroup"`
	ReaderUsr     string `mapstructure:"readerUsr"`
	ReaderUsrPwd  string `mapstructure:"readerUsrPwd"`
	WriterUsr     string `mapstructure:"writerUsr"`
	WriterUsrPwd  string `mapstructure:"writerUsrPwd"`
	MaxAttempts   int    `mapstructure:"maxAttempts"`
}

// RelayConfig drives the outbox publisher loop.
type RelayConfig struct {
	Workers     int           `mapstructure:"workers"`
	BatchSize   int           `mapstructure:"batchSize"`
	Lease       time.Duration `mapstructure:"lease"`
	PollPeriod  time.Duration `mapstructure:"pollPeriod"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
}

// Reservation controls the stock hold TTL and the expiry reaper.
type Reservation struct {
	TTL            time.Duration `mapstructure:"ttl"`
	ReaperSchedule string        `mapstructure:"reaperSchedule"` // cron spec or "@every 1m"
	ReaperBatch    int           `mapstructure:"reaperBatch"`
}

// Saga controls the stalled-saga supervisor.
type Saga struct {
	SupervisorSchedule string        `mapstructure:"supervisorSchedule"`
	ProgressDeadline   time.Duration `mapstructure:"progressDeadline"`
}

type Breaker struct {
	Threshold        int           `mapstructure:"threshold"`
	ResetTimeout     time.Duration `mapstructure:"resetTimeout"`
	MonitoringWindow time.Duration `mapstructure:"monitoringWindow"`
}

type Payment struct {
	GatewayURL string `mapstructure:"gatewayURL"`
}

type HTTPClient struct {
	ConnectTimeout        time.Duration `mapstructure:"connectTimeout"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"TLSHandshakeTimeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"responseHeaderTimeout"`
	ExpectContinueTimeout time.Duration `mapstructure:"expectContinueTimeout"`

	IdleConnTimeout     time.Duration `mapstructure:"idleConnTimeout"`
	MaxIdleConns        int           `mapstructure:"maxIdleConns"`
	MaxIdleConnsPerHost int           `mapstructure:"maxIdleConnsPerHost"`
	MaxConnsPerHost     int           `mapstructure:"maxConnsPerHost"`
	KeepAlives          bool          `mapstructure:"keepAlives"`

	// Overall client timeout. 0 means the caller controls it via context.
	ClientTimeout time.Duration `mapstructure:"clientTimeout"`

	UserAgent  string `mapstructure:"userAgent"`
	MaxRetries int    `mapstructure:"maxRetries"`

	InsecureSkipVerify bool `mapstructure:"insecureSkipVerify"`
}

func NewConfig() (Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	setDefaults()

	var conf Config
	err := viper.ReadInConfig()
	// a missing config file is fine, env vars are enough
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}

	err = viper.Unmarshal(&conf)

	return conf, err
}

func setDefaults() {
	viper.SetDefault("broker.kafka.subjectPrefix", "commerce")
	viper.SetDefault("broker.kafka.consumerGroup", "fulfillment")
	viper.SetDefault("broker.kafka.maxAttempts", 3)

	viper.SetDefault("relay.workers", 4)
	viper.SetDefault("relay.batchSize", 50)
	viper.SetDefault("relay.lease", 30*time.Second)
	viper.SetDefault("relay.pollPeriod", time.Second)
	viper.SetDefault("relay.maxAttempts", 10)

	viper.SetDefault("reservation.ttl", 15*time.Minute)
	viper.SetDefault("reservation.reaperSchedule", "@every 1m")
	viper.SetDefault("reservation.reaperBatch", 100)

	viper.SetDefault("saga.supervisorSchedule", "@every 1m")
	viper.SetDefault("saga.progressDeadline", 10*time.Minute)

	viper.SetDefault("breaker.threshold", 5)
	viper.SetDefault("breaker.resetTimeout", time.Minute)
	viper.SetDefault("breaker.monitoringWindow", time.Minute)
}
