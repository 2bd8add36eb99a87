package player

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVE"), "wav"},
		{"id3 tagged mp3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00"), "mp3"},
		{"raw mp3 frame", []byte{0xFF, 0xFB, 0x90, 0x64}, "mp3"},
		{"riff but not wave", []byte("RIFF\x24\x00\x00\x00AVI "), ""},
		{"empty", nil, ""},
		{"text", []byte("hello world!"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectFormat(tt.head))
		})
	}
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out.bin", []byte("definitely not audio"), 0o644))

	p := New(fs, nil, nil)
	_, _, err := p.open("/out.bin")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, _, err = p.open("/missing.wav")
	assert.Error(t, err)
}
