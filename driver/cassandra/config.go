package cassandra

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	defaultPort               = 9042
	defaultConsistency        = "LOCAL_QUORUM"
	defaultTimeout            = 20 * time.Second
	defaultConnectionsPerHost = 3
	defaultProtoVersion       = 4
)

// Config describes how to reach a Cassandra cluster.
type Config struct {
	ContactPoints      []string      `mapstructure:"contact_points"`
	Port               int           `mapstructure:"port"`
	Keyspace           string        `mapstructure:"keyspace"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Consistency        string        `mapstructure:"consistency"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ConnectionsPerHost int           `mapstructure:"connections_per_host"`
	ProtoVersion       int           `mapstructure:"proto_version"`
}

// cluster converts the config into a gocql cluster, filling unset fields
// with defaults.
func (c Config) cluster() (*gocql.ClusterConfig, error) {
	cluster := gocql.NewCluster(c.ContactPoints...)
	cluster.Keyspace = c.Keyspace

	cluster.Port = c.Port
	if cluster.Port == 0 {
		cluster.Port = defaultPort
	}

	consistency := c.Consistency
	if consistency == "" {
		consistency = defaultConsistency
	}
	level, err := gocql.ParseConsistencyWrapper(consistency)
	if err != nil {
		return nil, err
	}
	cluster.Consistency = level

	cluster.Timeout = c.Timeout
	if cluster.Timeout == 0 {
		cluster.Timeout = defaultTimeout
	}

	cluster.NumConns = c.ConnectionsPerHost
	if cluster.NumConns == 0 {
		cluster.NumConns = defaultConnectionsPerHost
	}

	cluster.ProtoVersion = c.ProtoVersion
	if cluster.ProtoVersion == 0 {
		cluster.ProtoVersion = defaultProtoVersion
	}

	if c.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: c.Username,
			Password: c.Password,
		}
	}
	return cluster, nil
}
