package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/gus-bms/db-checker/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// MySQLConfig builds the driver config for the monitored database.
// parseTime is left off because status rows are read as strings.
func MySQLConfig(cfg config.MySQLConfig) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.Timeout = cfg.ConnTimeout
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc
}

// BuildMySQLDSN formats MySQLConfig as a go-sql-driver DSN.
func BuildMySQLDSN(cfg config.MySQLConfig) string {
	return MySQLConfig(cfg).FormatDSN()
}
