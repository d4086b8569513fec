package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestStageReaderDetectsTypeAndReopens(t *testing.T) {
	f, err := StageReader(bytes.NewReader(pngHeader), "cover.png", t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer f.Release()

	assert.Equal(t, "image/png", f.ContentType)
	assert.EqualValues(t, len(pngHeader), f.Size)

	for i := 0; i < 2; i++ {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, pngHeader, data)
	}
}

func TestStageReaderRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	_, err := StageReader(strings.NewReader(strings.Repeat("a", 11)), "big", dir, 10)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReleaseRemovesTempFile(t *testing.T) {
	f, err := StageReader(strings.NewReader("ID3hello"), "a.mp3", t.TempDir(), 0)
	require.NoError(t, err)
	require.NoError(t, f.Release())
	require.NoError(t, f.Release())
	_, err = f.Open()
	require.Error(t, err)
}

func TestPolicyCheck(t *testing.T) {
	cover := Policy{Label: "cover", MaxBytes: 1 << 20, AllowedTypes: ImageTypes}
	require.NoError(t, cover.Check(NewBytesFile("c.png", "", pngHeader)))

	err := cover.Check(NewBytesFile("c.txt", "", []byte("just some text")))
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = cover.Check(NewBytesFile("empty.png", "image/png", nil))
	assert.True(t, IsValidation(err))

	small := Policy{Label: "audio", MaxBytes: 4}
	assert.True(t, IsValidation(small.Check(NewBytesFile("a", "audio/mpeg", []byte("12345")))))
	assert.True(t, IsValidation(small.Check(nil)))
}

func TestAudioPolicyAcceptsMP3(t *testing.T) {
	audio := Policy{Label: "audio", AllowedTypes: AudioTypes}
	require.NoError(t, audio.Check(NewBytesFile("a.mp3", "", []byte("ID3\x04\x00\x00\x00\x00\x00\x00rest"))))
}

func TestProgressReaderIsMonotonicAndCapped(t *testing.T) {
	var got []int
	pr := NewProgressReader(bytes.NewReader(make([]byte, 100)), 100, func(p int) { got = append(got, p) })
	buf := make([]byte, 30)
	for {
		if _, err := pr.Read(buf); err != nil {
			break
		}
	}
	pr.Advance(50)
	assert.Equal(t, []int{29, 59, 89, 99}, got)
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("io")
	err := Transient("upload", base)
	assert.ErrorIs(t, err, base)
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "upload")
	assert.True(t, IsValidation(Validation("check", base)))
	assert.Equal(t, "content/abc", ObjectKey("abc"))
}
