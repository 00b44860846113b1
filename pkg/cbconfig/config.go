package cbconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PoolConfiguration bounds one node's connection pool (spec §6).
type PoolConfiguration struct {
	MinSize         int           `yaml:"min_size"`
	MaxSize         int           `yaml:"max_size"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BucketCredentials is a single bucket's name/password pair, used when
// the cluster is not configured for cluster-wide password auth.
type BucketCredentials struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// ClusterConfig is the full configuration surface from spec §6.
type ClusterConfig struct {
	UseSsl  bool                `yaml:"use_ssl"`
	Servers []string            `yaml:"servers"`
	Buckets []BucketCredentials `yaml:"buckets"`

	Pool PoolConfiguration `yaml:"pool"`

	ViewRequestTimeout      time.Duration `yaml:"view_request_timeout"`
	QueryRequestTimeout     time.Duration `yaml:"query_request_timeout"`
	SearchRequestTimeout    time.Duration `yaml:"search_request_timeout"`
	AnalyticsRequestTimeout time.Duration `yaml:"analytics_request_timeout"`

	OperationLifespan    time.Duration `yaml:"operation_lifespan"`
	VBucketRetrySleepTime time.Duration `yaml:"vbucket_retry_sleep_time"`

	IOErrorThreshold     int           `yaml:"io_error_threshold"`
	IOErrorCheckInterval time.Duration `yaml:"io_error_check_interval"`

	QueryFailedThreshold int `yaml:"query_failed_threshold"`

	ConfigPollEnabled    bool          `yaml:"config_poll_enabled"`
	ConfigPollInterval   time.Duration `yaml:"config_poll_interval"`
	ConfigPollCheckFloor time.Duration `yaml:"config_poll_check_floor"`

	EnableTcpKeepAlives  bool          `yaml:"enable_tcp_keep_alives"`
	TcpKeepAliveTime     time.Duration `yaml:"tcp_keep_alive_time"`
	TcpKeepAliveInterval time.Duration `yaml:"tcp_keep_alive_interval"`

	ForceSaslPlain bool `yaml:"force_sasl_plain"`

	EnableCertificateAuthentication     bool `yaml:"enable_certificate_authentication"`
	EnableCertificateRevocation         bool `yaml:"enable_certificate_revocation"`
	IgnoreRemoteCertificateNameMismatch bool `yaml:"ignore_remote_certificate_name_mismatch"`

	UseConnectionPooling bool `yaml:"use_connection_pooling"`

	// RehabInterval governs the HTTP dispatcher's URI rehabilitation
	// window and the cadence of its background rehab prober. Nothing else
	// reads it.
	RehabInterval time.Duration `yaml:"rehab_interval"`
}

// Default returns the configuration spec §6 implies when a field is left
// unset: a single bootstrap node at the well-known REST port, pooled
// (not multiplexed) IO, and conservative quarantine/retirement tuning.
func Default() *ClusterConfig {
	return &ClusterConfig{
		Servers: []string{"http://localhost:8091"},
		Pool: PoolConfiguration{
			MinSize:         1,
			MaxSize:         5,
			WaitTimeout:     2500 * time.Millisecond,
			ShutdownTimeout: 3 * time.Second,
		},
		ViewRequestTimeout:      75 * time.Second,
		QueryRequestTimeout:     75 * time.Second,
		SearchRequestTimeout:    75 * time.Second,
		AnalyticsRequestTimeout: 75 * time.Second,
		OperationLifespan:       2500 * time.Millisecond,
		VBucketRetrySleepTime:   100 * time.Millisecond,
		IOErrorThreshold:        10,
		IOErrorCheckInterval:    500 * time.Millisecond,
		QueryFailedThreshold:    2,
		ConfigPollEnabled:       true,
		ConfigPollInterval:      2500 * time.Millisecond,
		ConfigPollCheckFloor:    50 * time.Millisecond,
		EnableTcpKeepAlives:     true,
		TcpKeepAliveTime:        60 * time.Second,
		TcpKeepAliveInterval:    1 * time.Second,
		UseConnectionPooling:    true,
		RehabInterval:           60 * time.Second,
	}
}

// Validate rejects configurations the router cannot act on safely.
func (c *ClusterConfig) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("cbconfig: at least one bootstrap server is required")
	}
	if c.Pool.MinSize < 0 || c.Pool.MaxSize <= 0 {
		return fmt.Errorf("cbconfig: pool min_size must not be negative and max_size must be positive (min=%d max=%d)", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		return fmt.Errorf("cbconfig: pool min_size (%d) exceeds max_size (%d)", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.IOErrorThreshold <= 0 {
		return fmt.Errorf("cbconfig: io_error_threshold must be positive")
	}
	if c.ConfigPollInterval < c.ConfigPollCheckFloor {
		return fmt.Errorf("cbconfig: config_poll_interval (%s) must not be below config_poll_check_floor (%s)", c.ConfigPollInterval, c.ConfigPollCheckFloor)
	}
	if c.QueryFailedThreshold <= 0 {
		return fmt.Errorf("cbconfig: query_failed_threshold must be positive")
	}
	return nil
}

// LoadFile reads a YAML config file, layering it over Default() so a
// partial file only overrides the fields it sets.
func LoadFile(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cbconfig: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cbconfig: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
