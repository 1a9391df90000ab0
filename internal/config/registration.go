// Package config manages the set of external databases the Syncer is
// configured to introspect: their connection strings, sync schedule, and
// pool settings. It's a sqlx-over-modernc.org/sqlite settings store plus a
// YAML bootstrap loader, narrowed to the one concern the Syncer actually
// owns — auth, roles, and API keys belong to an HTTP layer and have no
// home here.
package config

import "time"

// Registration is one external database the Syncer is configured to sync.
type Registration struct {
	ID             int64         `json:"id" db:"id"`
	Name           string        `json:"name" db:"name"`
	Driver         string        `json:"driver" db:"driver"` // postgres, mysql, mssql, snowflake, sqlite
	DSN            string        `json:"dsn,omitempty" db:"dsn"`
	PrivateKeyPath string        `json:"private_key_path,omitempty" db:"private_key_path"`
	Schema         string        `json:"schema" db:"schema_name"`
	IsActive       bool          `json:"is_active" db:"is_active"`
	SyncInterval   time.Duration `json:"sync_interval" db:"sync_interval_ms"`
	Pool           PoolConfig    `json:"pool"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// PoolConfig controls the connection pool a Driver opens against a
// Registration's DSN.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig returns sensible defaults for a newly registered
// database.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// DefaultSyncInterval is how often a full sync runs against a Registration
// when the YAML config does not override it.
const DefaultSyncInterval = 6 * time.Hour
