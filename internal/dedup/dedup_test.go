package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		url, source, expected bool
	}{
		{false, false, false},
		{true, false, true},
		{false, true, true},
		{true, true, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsDuplicate(tt.url, tt.source), "url=%v source=%v", tt.url, tt.source)
	}
}

func TestSourceID(t *testing.T) {
	assert.Equal(t, "guid-123", SourceID("guid-123", "https://example.com/a"))
	assert.Equal(t, "guid-123", SourceID("  guid-123 ", ""))

	sum := sha256.Sum256([]byte("https://example.com/a"))
	assert.Equal(t, hex.EncodeToString(sum[:]), SourceID("", "https://example.com/a"))
	assert.Equal(t, SourceID("", "https://example.com/a"), SourceID("   ", "https://example.com/a"))
	assert.Len(t, SourceID("", "https://example.com/b"), 64)
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) SignalURLExists(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

func (m *mockLookup) SignalSourceExists(ctx context.Context, sourceType, sourceID string) (bool, error) {
	args := m.Called(ctx, sourceType, sourceID)
	return args.Bool(0), args.Error(1)
}

func TestChecker_URLMatchShortCircuits(t *testing.T) {
	lk := new(mockLookup)
	lk.On("SignalURLExists", mock.Anything, "https://x/1").Return(true, nil)

	res, err := NewChecker(lk).Check(context.Background(), "https://x/1", "rss", "id-1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate())
	assert.True(t, res.URLMatch)
	lk.AssertNotCalled(t, "SignalSourceExists", mock.Anything, mock.Anything, mock.Anything)
}

func TestChecker_SourceMatch(t *testing.T) {
	lk := new(mockLookup)
	lk.On("SignalURLExists", mock.Anything, "https://x/2").Return(false, nil)
	lk.On("SignalSourceExists", mock.Anything, "rss", "id-2").Return(true, nil)

	res, err := NewChecker(lk).Check(context.Background(), "https://x/2", "rss", "id-2")
	require.NoError(t, err)
	assert.Equal(t, Result{SourceMatch: true}, res)
	assert.True(t, res.Duplicate())
	lk.AssertExpectations(t)
}

func TestChecker_NoMatch(t *testing.T) {
	lk := new(mockLookup)
	lk.On("SignalURLExists", mock.Anything, "https://x/3").Return(false, nil)
	lk.On("SignalSourceExists", mock.Anything, "rss", "id-3").Return(false, nil)

	res, err := NewChecker(lk).Check(context.Background(), "https://x/3", "rss", "id-3")
	require.NoError(t, err)
	assert.False(t, res.Duplicate())
}

func TestChecker_EmptyURLSkipsURLLookup(t *testing.T) {
	lk := new(mockLookup)
	lk.On("SignalSourceExists", mock.Anything, "social", "p-9").Return(false, nil)

	res, err := NewChecker(lk).Check(context.Background(), "", "social", "p-9")
	require.NoError(t, err)
	assert.False(t, res.Duplicate())
	lk.AssertNotCalled(t, "SignalURLExists", mock.Anything, mock.Anything)
}

func TestChecker_LookupError(t *testing.T) {
	lk := new(mockLookup)
	lk.On("SignalURLExists", mock.Anything, "https://x/4").Return(false, errors.New("db down"))

	_, err := NewChecker(lk).Check(context.Background(), "https://x/4", "rss", "id-4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup: lookup url")
}
