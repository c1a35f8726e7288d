package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePeerGroup(t *testing.T) {
	cases := []struct {
		name     string
		optional string
		wantID   int
		wantOK   bool
	}{
		{"shared only", "shared:4", 4, true},
		{"shared and master", "shared:4 master:7", 4, true},
		{"master only", "master:7", 0, false},
		{"empty", "", 0, false},
		{"unbindable", "unbindable", 0, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			id, ok := parsePeerGroup(c.optional)
			assert.Equal(t, c.wantOK, ok)
			if c.wantOK {
				assert.Equal(t, c.wantID, id)
			}
		})
	}
}
