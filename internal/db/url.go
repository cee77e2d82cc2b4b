package db

import (
	"fmt"

	"github.com/docker/go-connections/nat"
)

// Credentials and addressing shared by every environment of a run. Other
// environments reach the reference database only through Alias.
const (
	Alias         = "postgres"
	Username      = "postgres"
	Password      = "postgres"
	MaintenanceDB = "postgres"
)

var PGPort = nat.Port("5432/tcp")

type ConnectionURL struct {
	Host     string
	Port     nat.Port
	Username string
	Password string
	DBName   string
}

func NewConnectionURL(host string, port nat.Port, dbName string) ConnectionURL {
	return ConnectionURL{
		Host:     host,
		Port:     port,
		Username: Username,
		Password: Password,
		DBName:   dbName,
	}
}

func (u ConnectionURL) String() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", u.Username, u.Password, u.Host, u.Port.Int(), u.DBName)
}
