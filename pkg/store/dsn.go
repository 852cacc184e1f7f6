package store

import (
	"github.com/go-sql-driver/mysql"
)

// ConnParams carries the discrete MySQL connection settings used by
// deployments that configure host, user, password and database separately
// instead of supplying a full DSN.
type ConnParams struct {
	// Host is the server address, "host:port".
	Host string

	// User authenticates the connection.
	User string

	// Password authenticates the connection.
	Password string

	// Database is the schema holding the words table.
	Database string
}

// DSN renders the parameters as a go-sql-driver/mysql data source name.
// The connection is forced to utf8mb4 to match the keypoint table encoding.
func (p ConnParams) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = p.Host
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.DBName = p.Database
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}
