package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := (ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "decisioncore",
		User:         "app",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  30 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	}).DSN()
	assert.Equal(t, "clickhouse://app:p%40ss@ch:9000/decisioncore?async_insert=1&dial_timeout=5s&max_execution_time=30&wait_for_async_insert=1", dsn)

	dsn = (ClientConfig{Host: "ch", Port: 8123, Database: "default", UseHTTP: true}).DSN()
	assert.Equal(t, "http://ch:8123/default", dsn)
}

func TestClientConfigValidate(t *testing.T) {
	require.NoError(t, DefaultClientConfig().Validate())

	cfg := DefaultClientConfig()
	cfg.Host = ""
	cfg.Port = 0
	cfg.MaxIdleConns = 20
	err := cfg.Validate()
	assert.ErrorContains(t, err, "host is required")
	assert.ErrorContains(t, err, "port 0 out of range")
	assert.ErrorContains(t, err, "max idle conns 20 above max open 10")

	_, err = NewClient(cfg)
	assert.ErrorContains(t, err, "clickhouse config")
}

func TestInitSchema(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	c := NewClientFromDB(db, "decisioncore")
	defer c.Close()

	m.ExpectExec("CREATE DATABASE").WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)

	err = c.InitSchema(context.Background(), []string{"CREATE DATABASE IF NOT EXISTS x", "CREATE TABLE y"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "decisioncore", c.Database())
	require.NoError(t, m.ExpectationsWereMet())
}
