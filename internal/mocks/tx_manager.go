package mocks

import (
	"context"

	"epic-engine/internal/interfaces"

	"github.com/stretchr/testify/mock"
)

// Mock TxManager. When the expectation returns nil the callback runs with a
// nil DBTX, so repository mocks set up alongside it see their calls as
// usual; a non-nil return simulates a failed transaction begin and the
// callback is skipped.
type TxManager struct {
	mock.Mock
}

func (m *TxManager) WithTx(ctx context.Context, fn func(tx interfaces.DBTX) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(nil)
}

var _ interfaces.TxManager = (*TxManager)(nil)
