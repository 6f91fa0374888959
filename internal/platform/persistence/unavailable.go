package persistence

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/expense-tracker/internal/domain/shared"
)

// Unavailable tags connectivity failures with shared.ErrStoreUnavailable so
// callers can tell a down store from a bad request. Other errors pass through.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, shared.ErrStoreUnavailable) {
		return err
	}
	if IsConnectivityError(err) {
		return fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}
	return err
}

// IsConnectivityError reports network, timeout and server-down errors from
// either driver
func IsConnectivityError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.Timeout(err)
}
