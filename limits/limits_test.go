package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		limit  int
		target error
	}{
		{"empty", 0, 10, ErrEmpty},
		{"within", 10, 10, nil},
		{"above", 11, 10, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(make([]byte, tt.size), tt.limit)
			if tt.target == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestValidateDatagram(t *testing.T) {
	assert.NoError(t, ValidateDatagram(make([]byte, 1500)))
	assert.ErrorIs(t, ValidateDatagram(make([]byte, MaxDatagramSize)), ErrTooLarge, "a full buffer may be truncated")
	assert.ErrorIs(t, ValidateDatagram(nil), ErrEmpty)
}

func TestValidateAudioPayload(t *testing.T) {
	assert.NoError(t, ValidateAudioPayload(make([]byte, MaxAudioPayload)))
	assert.ErrorIs(t, ValidateAudioPayload(make([]byte, MaxAudioPayload+1)), ErrTooLarge)
	assert.Equal(t, MaxDatagramSize, MaxAudioPayload+AudioHeaderOverhead)
}

func TestValidateFrameSamples(t *testing.T) {
	assert.NoError(t, ValidateFrameSamples(352))
	assert.NoError(t, ValidateFrameSamples(MaxFrameSamples))
	assert.ErrorIs(t, ValidateFrameSamples(0), ErrEmpty)
	assert.ErrorIs(t, ValidateFrameSamples(MaxFrameSamples+1), ErrTooLarge)
}
