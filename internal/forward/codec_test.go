package forward

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		compression string
		compressed  bool
		contentType string
		wantErr     bool
	}{
		{"empty", "", false, ContentTypeJSON, false},
		{"none", "none", false, ContentTypeJSON, false},
		{"zstd", "zstd", true, ContentTypeZstd, false},
		{"unknown", "lz4", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewCodec(tt.compression)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.compressed, c.Compressed())
			assert.Equal(t, tt.contentType, c.ContentType())
		})
	}
}

func TestCodecZstdShrinksRepetitiveFrames(t *testing.T) {
	t.Parallel()

	c, err := NewCodec("zstd")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte(`{"seq":1,"valid":true,"lifetime":0.385}`), 200)
	enc := c.Encode(nil, payload)
	assert.Less(t, len(enc), len(payload)/4)

	dec, err := c.Decode(nil, enc)
	require.NoError(t, err)
	assert.Equal(t, payload, dec)
}

func TestCodecPassthroughAppends(t *testing.T) {
	t.Parallel()

	var c Codec
	out := c.Encode([]byte("a"), []byte("bc"))
	assert.Equal(t, []byte("abc"), out)

	dec, err := c.Decode(nil, out)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), dec)
}

func TestCodecRejectsGarbage(t *testing.T) {
	t.Parallel()

	c, err := NewCodec("zstd")
	require.NoError(t, err)
	_, err = c.Decode(nil, []byte("definitely not zstd"))
	assert.Error(t, err)
}
