package mock

import (
	"context"
	"sync/atomic"
)

// MockVision is a test double for ai.ImageDescriber.
type MockVision struct {
	// Description is returned for every image.
	Description string

	// Err fails every request when set.
	Err error

	// LastQuestion and LastFormat record the most recent request.
	LastQuestion string
	LastFormat   string

	callCount atomic.Int64
}

// NewMockVision creates a describer that always returns description.
func NewMockVision(description string) *MockVision {
	return &MockVision{Description: description}
}

// DescribeImage returns the scripted description.
func (m *MockVision) DescribeImage(ctx context.Context, image []byte, format, question string) (string, error) {
	m.callCount.Add(1)
	m.LastQuestion = question
	m.LastFormat = format
	if m.Err != nil {
		return "", m.Err
	}
	return m.Description, nil
}

// CallCount returns the number of DescribeImage calls.
func (m *MockVision) CallCount() int {
	return int(m.callCount.Load())
}
