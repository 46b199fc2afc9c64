package db

import (
	"fmt"
	"net"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/zulandar/tally/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN for the report database.
func DSN(host string, port int, user, password, database string) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect opens a GORM connection for the configured SQL driver.
func Connect(cfg config.SQLConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	var target string
	switch cfg.Driver {
	case config.DriverMySQL:
		dialector = mysql.Open(DSN(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database))
		target = fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	case config.DriverSQLite, "":
		dialector = sqlite.Open(cfg.Path)
		target = cfg.Path
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", target, err)
	}
	return db, nil
}
