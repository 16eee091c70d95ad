package cancel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	opserrors "github.com/bootdash/cloudops/common/errors"
)

func TestCancelIdempotent(t *testing.T) {
	tok := New()
	assert.False(t, tok.IsCancelled())
	assert.NoError(t, Check(tok))

	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.IsCancelled())

	select {
	case <-tok.Done():
	default:
		t.Fatal("Done should be closed after Cancel")
	}

	err := Check(tok)
	assert.True(t, opserrors.IsCancelled(err), "got %v", err)
}

func TestConcurrentCancel(t *testing.T) {
	tok := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Cancel()
			assert.True(t, tok.IsCancelled())
		}()
	}
	wg.Wait()
	assert.True(t, tok.IsCancelled())
}

// Any interleaving of Cancel and IsCancelled calls never observes the flag reverting.
func TestCancelMonotonic(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("cancelled never reverts", prop.ForAll(
		func(script []bool) bool {
			tok := New()
			seen := false
			for _, doCancel := range script {
				if doCancel {
					tok.Cancel()
				}
				now := tok.IsCancelled()
				if seen && !now {
					return false
				}
				seen = now
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))
	properties.TestingRun(t)
}

type flag bool

func (f *flag) IsCancelled() bool { return bool(*f) }

func TestMergeObservesExternalMonitor(t *testing.T) {
	tok := New()
	external := new(flag)
	m := Merge(tok, external, nil)

	assert.False(t, m.IsCancelled())
	*external = true
	assert.True(t, m.IsCancelled())
	assert.False(t, tok.IsCancelled(), "merging must not cancel the token")
	assert.True(t, opserrors.IsCancelled(Check(m)))
}

func TestMergeNilToken(t *testing.T) {
	assert.False(t, Merge(nil).IsCancelled())
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := FromContext(ctx)
	assert.False(t, m.IsCancelled())
	cancel()
	assert.True(t, m.IsCancelled())
}

func TestWithToken(t *testing.T) {
	tok := New()
	ctx, release := WithToken(context.Background(), tok)
	defer release()

	tok.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should follow the token")
	}
}

func TestTokensCancelAllBefore(t *testing.T) {
	ts := NewTokens()
	first := ts.Create()
	second := ts.Create()
	third := ts.Create()
	assert.True(t, first.ID() < second.ID() && second.ID() < third.ID())

	ts.CancelAllBefore(third)
	assert.True(t, first.IsCancelled())
	assert.True(t, second.IsCancelled())
	assert.False(t, third.IsCancelled())
	assert.Equal(t, 1, ts.Len())

	fourth := ts.Create()
	ts.Release(third)
	assert.Equal(t, 1, ts.Len())

	ts.CancelAll()
	assert.True(t, fourth.IsCancelled())
	assert.False(t, third.IsCancelled(), "released tokens are not cancelled")
	assert.Equal(t, 0, ts.Len())
}
