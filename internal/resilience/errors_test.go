package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("invalid input: missing field"), false},
		{"explicit transient", NewTransientError(errors.New("pool exhausted"), "53300"), true},
		{"wrapped transient", fmt.Errorf("store: list display names: %w", NewTransientError(errors.New("lost"), "08006")), true},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"network timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"pgx connect", errors.New("failed to connect to `host=localhost user=profiles`"), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"bad numeric", &pgconn.PgError{Code: "22P02"}, false},
		{"wrapped serialization failure", fmt.Errorf("store: upsert profile: %w", &pgconn.PgError{Code: "40001"}), true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientSQLState(t *testing.T) {
	for _, code := range []string{"08000", "08001", "08006", "40001", "40P01", "53300", "55P03", "57P01", "57P03"} {
		assert.True(t, IsTransientSQLState(code), code)
	}
	for _, code := range []string{"", "23505", "23503", "42703", "22003"} {
		assert.False(t, IsTransientSQLState(code), code)
	}
}

func TestTransientError_UnwrapAndMessage(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, "40001")

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "40001", te.Code)
	assert.Equal(t, "root cause", te.Error())
}
