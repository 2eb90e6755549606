package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"DF-TPLGEN/internal/apperrors"
)

func fastBackoff(retries uint64) retry.Backoff {
	return retry.WithMaxRetries(retries, retry.NewConstant(time.Millisecond))
}

func TestConflictRetrySucceedsAfterDeadlocks(t *testing.T) {
	calls := 0
	err := withConflictRetry(context.Background(), fastBackoff(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("commit: %w", &mysql.MySQLError{Number: mysqlDeadlock, Message: "Deadlock found"})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withConflictRetry() = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestConflictRetryExhausted(t *testing.T) {
	calls := 0
	err := withConflictRetry(context.Background(), fastBackoff(2), func(ctx context.Context) error {
		calls++
		return &mysql.MySQLError{Number: mysqlLockWaitTimeout, Message: "Lock wait timeout exceeded"}
	})
	if !errors.Is(err, apperrors.KindConcurrentUsageCountConflict) {
		t.Fatalf("withConflictRetry() = %v, want ConcurrentUsageCountConflict", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestConflictRetryDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	missing := apperrors.New(apperrors.KindNotFound, "template x not found")
	err := withConflictRetry(context.Background(), fastBackoff(5), func(ctx context.Context) error {
		calls++
		return missing
	})
	if !errors.Is(err, apperrors.KindNotFound) || calls != 1 {
		t.Errorf("withConflictRetry() = %v after %d calls", err, calls)
	}
}

func TestIsLockConflict(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{&mysql.MySQLError{Number: 1062}, false},
		{&mysql.MySQLError{Number: mysqlDeadlock}, true},
		{fmt.Errorf("tx: %w", &mysql.MySQLError{Number: mysqlLockWaitTimeout}), true},
	}
	for _, tc := range tests {
		if got := isLockConflict(tc.err); got != tc.want {
			t.Errorf("isLockConflict(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNotFoundMapsRecordNotFound(t *testing.T) {
	err := notFound(gorm.ErrRecordNotFound, "template %s", "abc")
	if !errors.Is(err, apperrors.KindNotFound) || !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("notFound() = %v", err)
	}

	err = notFound(errors.New("connection refused"), "template %s", "abc")
	if apperrors.KindOf(err) != "" {
		t.Errorf("driver error was typed: %v", err)
	}
}

func TestClampLimitAndEscapeLike(t *testing.T) {
	for in, want := range map[int]int{-1: 50, 0: 50, 10: 10, 200: 200, 5000: 200} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}
