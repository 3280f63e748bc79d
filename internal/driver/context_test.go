// internal/driver/context_test.go
package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	type ctxKey string
	const key ctxKey = "session"
	const value = "primary"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, value)
		secondary := context.Background()

		combined, cancel := combineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, value, combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CanceledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := combineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()

		assert.Eventually(t, func() bool {
			return combined.Err() != nil
		}, 100*time.Millisecond, 10*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CanceledBySecondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cancel := combineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()

		assert.Eventually(t, func() bool {
			return combined.Err() != nil
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("OwnCancelReleasesTheWatcher", func(t *testing.T) {
		combined, cancel := combineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key, "kept"))
	detached := detach(parent)

	cancel()

	assert.Error(t, parent.Err())
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	assert.Equal(t, "kept", detached.Value(key))

	_, hasDeadline := detached.Deadline()
	assert.False(t, hasDeadline)
}
