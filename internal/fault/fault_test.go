package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageIncludesOpAndSortedDetails(t *testing.T) {
	err := New(InsufficientHistory, "registry.rollback", "not enough history").
		With("steps", "5").
		With("alias", "stable")

	assert.Equal(t, "registry.rollback: not enough history (alias=stable, steps=5)", err.Error())
}

func TestError_IncludesCause(t *testing.T) {
	cause := errors.New("disk gone")
	err := Wrap(ArtifactMissing, "registry.resolve_path", "artifact directory missing", cause)

	assert.Equal(t, "registry.resolve_path: artifact directory missing: disk gone", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIs_MatchesWrappedErrors(t *testing.T) {
	base := New(NotFound, "jobs.get", "job not found")
	wrapped := fmt.Errorf("show job: %w", base)

	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(wrapped, AlreadyExists))
	assert.Equal(t, NotFound, KindOf(wrapped))
}

func TestIs_PlainErrors(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), NotFound))
	assert.False(t, Is(nil, NotFound))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
