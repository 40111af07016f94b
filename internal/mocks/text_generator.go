package mocks

import (
	"context"

	"epic-engine/internal/interfaces"

	"github.com/stretchr/testify/mock"
)

// Mock TextGenerator
type TextGenerator struct {
	mock.Mock
}

func (m *TextGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, params interfaces.GenerationParams) (string, interfaces.Usage, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, params)
	usage, _ := args.Get(1).(interfaces.Usage)
	return args.String(0), usage, args.Error(2)
}

var _ interfaces.TextGenerator = (*TextGenerator)(nil)
