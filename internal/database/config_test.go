package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koustreak/dataagent/internal/errs"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil", nil, true},
		{"default", DefaultConfig("postgres://localhost/db"), false},
		{"unknown driver", &Config{Driver: "db2", DSN: "x"}, true},
		{"missing dsn", &Config{Driver: DriverSQLite}, true},
		{"min above max", &Config{Driver: DriverMySQL, DSN: "x", MinConns: 5, MaxConns: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, errs.IsInvalidInput(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/shop", RedactDSN("postgres://app:s3cret@db:5432/shop"))
	assert.Equal(t, "app:xxxxx@tcp(db:3306)/shop", RedactDSN("app:s3cret@tcp(db:3306)/shop"))
	assert.Equal(t, "host=db password=xxxxx dbname=shop", RedactDSN("host=db password=s3cret dbname=shop"))
	assert.Equal(t, "file:test.db?cache=shared", RedactDSN("file:test.db?cache=shared"))
}

func TestOpen_UnlinkedDriver(t *testing.T) {
	_, err := Open(context.Background(), &Config{Driver: DriverMySQL, DSN: "x"})
	assert.True(t, errs.IsInvalidInput(err), "no driver package is imported by this test binary")
}
