package retry

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	opserrors "github.com/bootdash/cloudops/common/errors"
)

func failing(calls *int) Body {
	return func() error {
		*calls++
		return fmt.Errorf("failure %d", *calls)
	}
}

func TestFixedExhausts(t *testing.T) {
	calls := 0
	err := Fixed(3, failing(&calls))
	assert.Equal(t, 3, calls)
	assert.EqualError(t, err, "failure 3", "must return the most recent failure")
}

func TestFixedSucceedsEventually(t *testing.T) {
	calls := 0
	err := Fixed(5, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFixedRunsAtLeastOnce(t *testing.T) {
	calls := 0
	assert.Error(t, Fixed(0, failing(&calls)))
	assert.Equal(t, 1, calls)
}

func TestWhenStopsOnFalsePredicate(t *testing.T) {
	calls := 0
	predicateCalls := 0
	err := When(5, func(error) bool {
		predicateCalls++
		return false
	}, failing(&calls))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, predicateCalls)
	assert.EqualError(t, err, "failure 1")
}

func TestWhenRetriesTransientOnly(t *testing.T) {
	calls := 0
	err := When(5, Transient, func() error {
		calls++
		if calls < 3 {
			return opserrors.AsTransient(errors.New("connection reset"))
		}
		return opserrors.AsFatal(errors.New("unauthorized"))
	})
	assert.Equal(t, 3, calls)
	assert.True(t, opserrors.IsFatal(err))
}

func TestCancelledIsNeverRetried(t *testing.T) {
	cancelled := func(calls *int) Body {
		return func() error {
			*calls++
			return opserrors.NewCancelled("stop")
		}
	}

	calls := 0
	assert.True(t, opserrors.IsCancelled(Fixed(5, cancelled(&calls))))
	assert.Equal(t, 1, calls)

	calls = 0
	assert.True(t, opserrors.IsCancelled(When(5, func(error) bool { return true }, cancelled(&calls))))
	assert.Equal(t, 1, calls)

	calls = 0
	assert.True(t, opserrors.IsCancelled(WithTimeout(time.Millisecond, time.Second, cancelled(&calls))))
	assert.Equal(t, 1, calls)
}

func TestWithTimeoutTerminates(t *testing.T) {
	calls := 0
	start := time.Now()
	err := WithTimeout(10*time.Millisecond, 100*time.Millisecond, failing(&calls))
	elapsed := time.Since(start)

	assert.EqualError(t, err, fmt.Sprintf("failure %d", calls))
	assert.True(t, calls >= 5, "expected several attempts, got %d", calls)
	assert.True(t, elapsed >= 100*time.Millisecond, "returned too early: %v", elapsed)
	assert.True(t, elapsed < 500*time.Millisecond, "returned too late: %v", elapsed)
}

func TestWithTimeoutSucceeds(t *testing.T) {
	calls := 0
	err := WithTimeout(time.Millisecond, time.Second, func() error {
		calls++
		if calls == 4 {
			return nil
		}
		return errors.New("not ready")
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestWithTimeoutHugeLimit(t *testing.T) {
	calls := 0
	err := WithTimeout(time.Millisecond, time.Duration(math.MaxInt64), func() error {
		calls++
		if calls == 3 {
			return nil
		}
		return errors.New("not ready")
	})
	assert.NoError(t, err, "a maximal limit must not overflow into an immediate stop")
	assert.Equal(t, 3, calls)
}

func TestWithTimeoutZeroLimitRunsOnce(t *testing.T) {
	calls := 0
	start := time.Now()
	err := WithTimeout(time.Hour, 0, func() error {
		calls++
		time.Sleep(time.Millisecond)
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, time.Since(start) < time.Second)
}

func TestWithTimeoutContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := WithTimeoutContext(ctx, 5*time.Millisecond, time.Hour, failing(&calls))
	assert.True(t, opserrors.IsCancelled(err), "got %v", err)
	assert.True(t, calls >= 1)
}

func TestDeadlineBackOff(t *testing.T) {
	now := time.Unix(1000, 0)
	b := &deadlineBackOff{interval: time.Second, limit: 10 * time.Second, now: func() time.Time { return now }}
	b.Reset()

	assert.Equal(t, time.Second, b.NextBackOff())
	now = now.Add(10 * time.Second)
	assert.Equal(t, time.Second, b.NextBackOff(), "limit is exclusive")
	now = now.Add(time.Nanosecond)
	assert.Equal(t, time.Duration(-1), b.NextBackOff())
}
