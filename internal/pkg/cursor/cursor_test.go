package cursor

import (
	"testing"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	createdAt := time.Date(2024, 3, 5, 10, 20, 30, 123456000, time.UTC)

	encoded := Encode(createdAt, "6f1c2b1e-0000-4000-8000-000000000001")
	assert.Equal(t, "2024-03-05T10:20:30.123456Z_6f1c2b1e-0000-4000-8000-000000000001", encoded)

	c, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(c.CreatedAt))
	assert.Equal(t, "6f1c2b1e-0000-4000-8000-000000000001", c.ID)
	assert.Equal(t, encoded, c.String())
}

func TestEncode_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	createdAt := time.Date(2024, 3, 5, 19, 0, 0, 0, loc)

	assert.Equal(t, "2024-03-05T10:00:00Z_n1", Encode(createdAt, "n1"))
}

func TestDecode_IDMayContainUnderscore(t *testing.T) {
	c, err := Decode("2024-03-05T10:00:00Z_a_b")
	require.NoError(t, err)
	assert.Equal(t, "a_b", c.ID)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no separator", "2024-03-05T10:00:00Z"},
		{"bad timestamp", "yesterday_n1"},
		{"empty id", "2024-03-05T10:00:00Z_"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestParse_EmptyMeansFirstPage(t *testing.T) {
	c, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = Parse("2024-03-05T10:00:00Z_n1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "n1", c.ID)
}
