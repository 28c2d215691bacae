// Package config loads a node's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-pubsub/pkg/auth"
	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/health"
)

// File is the on-disk configuration of one node.
//
// Example:
//
//	node:
//	  id: 3
//	  http_address: ":8083"
//	cluster:
//	  master_timeout: 10s
//	  merge_timeout: 10s
//	peers:
//	  - id: 1
//	    rpc: tcp://10.0.0.1:7001
//	    oneway: tcp://10.0.0.1:7002
//	    http: http://10.0.0.1:8081
type File struct {
	Node      NodeSection      `yaml:"node"`
	Cluster   ClusterSection   `yaml:"cluster"`
	Transport TransportSection `yaml:"transport"`
	Health    HealthSection    `yaml:"health"`
	Peers     []Peer           `yaml:"peers" validate:"required,min=1,dive"`
	Auth      AuthSection      `yaml:"auth"`
}

// NodeSection identifies this process.
type NodeSection struct {
	ID          int    `yaml:"id" validate:"gte=0"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	HTTPAddress string `yaml:"http_address"`
}

// ClusterSection carries the coordination timeouts.
type ClusterSection struct {
	MasterTimeout   time.Duration `yaml:"master_timeout" validate:"gte=0"`
	ElectionTimeout time.Duration `yaml:"election_timeout" validate:"gte=0"`
	MergeTimeout    time.Duration `yaml:"merge_timeout" validate:"gte=0"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout" validate:"gte=0"`
	TimeUnit        time.Duration `yaml:"time_unit" validate:"gte=0"`
}

// TransportSection selects the socket implementation.
type TransportSection struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=nng zmq"`
	Workers int    `yaml:"workers" validate:"gte=0,lte=64"`
}

// HealthSection tunes the slave monitor.
type HealthSection struct {
	Interval     time.Duration `yaml:"interval" validate:"gte=0"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" validate:"gte=0"`
	MaxFailures  int           `yaml:"max_failures" validate:"gte=0"`
}

// AuthSection holds the credentials accepted for topic changes. APIKeys
// are bcrypt hashes, never plain keys.
type AuthSection struct {
	JWTSecret string        `yaml:"jwt_secret" validate:"required,min=32"`
	TokenTTL  time.Duration `yaml:"token_ttl" validate:"gte=0"`
	APIKeys   []string      `yaml:"api_keys" validate:"dive,required"`
}

// Peer is one entry of the peer directory. The node's own entry supplies
// its listen addresses.
type Peer struct {
	ID     int    `yaml:"id" validate:"gte=0"`
	RPC    string `yaml:"rpc" validate:"required"`
	OneWay string `yaml:"oneway" validate:"required"`
	HTTP   string `yaml:"http" validate:"omitempty,url"`
}

// Load reads and validates the file at path. LOG_LEVEL, when set,
// overrides node.log_level and JWT_SECRET overrides auth.jwt_secret.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	f, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		f.Node.LogLevel = lvl
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		f.Auth.JWTSecret = secret
	}
	if err := f.finish(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(data []byte) (*File, error) {
	f, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := f.finish(); err != nil {
		return nil, err
	}
	return f, nil
}

func decode(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &f, nil
}

func (f *File) finish() error {
	f.applyDefaults()
	return f.Validate()
}

func (f *File) applyDefaults() {
	def := cluster.DefaultConfig()
	c := &f.Cluster
	if c.MasterTimeout == 0 {
		c.MasterTimeout = def.MasterTimeout
	}
	if c.ElectionTimeout == 0 {
		c.ElectionTimeout = def.ElectionTimeout
	}
	if c.MergeTimeout == 0 {
		c.MergeTimeout = def.MergeTimeout
	}
	if c.RPCTimeout == 0 {
		c.RPCTimeout = def.RPCTimeout
	}
	if c.TimeUnit == 0 {
		c.TimeUnit = def.TimeUnit
	}

	if f.Node.LogLevel == "" {
		f.Node.LogLevel = "info"
	}
	if f.Node.HTTPAddress == "" {
		f.Node.HTTPAddress = ":8080"
	}
	if f.Transport.Backend == "" {
		f.Transport.Backend = "nng"
	}
	if f.Transport.Workers == 0 {
		f.Transport.Workers = 4
	}

	hdef := health.DefaultMonitorConfig(0)
	if f.Health.Interval == 0 {
		f.Health.Interval = hdef.Interval
	}
	if f.Health.ProbeTimeout == 0 {
		f.Health.ProbeTimeout = hdef.ProbeTimeout
	}
	if f.Health.MaxFailures == 0 {
		f.Health.MaxFailures = hdef.MaxFailures
	}

	if f.Auth.TokenTTL == 0 {
		f.Auth.TokenTTL = auth.DefaultTokenTTL
	}
}

// ClusterConfig returns the coordination settings for this node.
func (f *File) ClusterConfig() cluster.Config {
	return cluster.Config{
		NodeID:          f.Node.ID,
		MasterTimeout:   f.Cluster.MasterTimeout,
		ElectionTimeout: f.Cluster.ElectionTimeout,
		MergeTimeout:    f.Cluster.MergeTimeout,
		RPCTimeout:      f.Cluster.RPCTimeout,
		TimeUnit:        f.Cluster.TimeUnit,
	}
}

// MonitorConfig returns the slave monitor settings.
func (f *File) MonitorConfig() health.MonitorConfig {
	return health.MonitorConfig{
		Interval:     f.Health.Interval,
		ProbeTimeout: f.Health.ProbeTimeout,
		MaxFailures:  f.Health.MaxFailures,
		ClusterSize:  len(f.Peers),
	}
}

// Authenticator builds the credential checker for the admin API.
func (f *File) Authenticator() (*auth.Authenticator, error) {
	tokens, err := auth.NewTokenManager(f.Auth.JWTSecret, f.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	keys, err := auth.NewKeySet(f.Auth.APIKeys)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(tokens, keys), nil
}

// TokenManager returns the signer for operator tokens.
func (f *File) TokenManager() (*auth.TokenManager, error) {
	return auth.NewTokenManager(f.Auth.JWTSecret, f.Auth.TokenTTL)
}

// Self returns this node's own peer entry. It exists once Validate passed.
func (f *File) Self() Peer {
	for _, p := range f.Peers {
		if p.ID == f.Node.ID {
			return p
		}
	}
	return Peer{}
}

// Others returns every peer except this node, in file order.
func (f *File) Others() []Peer {
	out := make([]Peer, 0, len(f.Peers))
	for _, p := range f.Peers {
		if p.ID != f.Node.ID {
			out = append(out, p)
		}
	}
	return out
}
