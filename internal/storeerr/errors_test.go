package storeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := Ambiguous("redshift", 2, []int64{4, 5})
	assert.Equal(t, "AMBIGUOUS_MATCH: payload matches 2 stored rows within tolerance [4 5] (type=redshift, shard=2)", err.Error())

	err = UnknownType("nope")
	assert.Equal(t, "CONFIG: object type is not registered (type=nope)", err.Error())

	cause := errors.New("database is locked")
	err = Unavailable(1, 5, cause)
	assert.Equal(t, "UNAVAILABLE: shard unavailable after 5 attempts (shard=1): database is locked", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"config", Config("bad %s", "thing"), IsConfig},
		{"missing shard key", MissingShardKey("ScalarModel"), IsConfig},
		{"ambiguous", Ambiguous("z", 0, []int64{1, 2}), IsAmbiguous},
		{"consistency", Consistency("z", 3, "serial %d differs", 9), IsConsistency},
		{"not found", NotFound("z", 0, 4), IsNotFound},
		{"unavailable", Unavailable(0, 3, errors.New("busy")), IsUnavailable},
		{"invalid payload", InvalidPayload("z", "missing %q", "z"), IsInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", tt.err))
			assert.True(t, tt.check(wrapped))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestCodeOf_Nil(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
}
