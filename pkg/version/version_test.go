package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		name   string
		peer   string
		expErr bool
	}{
		{"Empty", "", false},
		{"Same", "1.0.0", false},
		{"NewerMinor", "1.4.2", false},
		{"Prefixed", "v1.2", false},
		{"OlderMajor", "0.9.0", true},
		{"NewerMajor", "2.0.0", true},
		{"Malformed", "latest", true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			err := Compatible(test.peer)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIncompatibleError(t *testing.T) {
	assert.Equal(t, IncompatibleError{Local: ProtocolVersion, Peer: "2.0.0"}, Compatible("2.0.0"))
}
