package inference

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func TestResolveInputSize(t *testing.T) {
	tests := []struct {
		name     string
		dims     ort.Shape
		fallback int
		expected int
		wantErr  bool
	}{
		{name: "static", dims: ort.NewShape(1, 3, 640, 640), fallback: 320, expected: 640},
		{name: "dynamic", dims: ort.NewShape(-1, 3, -1, -1), fallback: 512, expected: 512},
		{name: "dynamic without fallback", dims: ort.NewShape(1, 3, -1, -1), wantErr: true},
		{name: "not square", dims: ort.NewShape(1, 3, 480, 640), wantErr: true},
		{name: "grayscale", dims: ort.NewShape(1, 1, 640, 640), wantErr: true},
		{name: "not nchw", dims: ort.NewShape(1, 640, 640), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			size, err := ResolveInputSize(tc.dims, tc.fallback)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, size)
		})
	}
}

func TestResolveOutputShape(t *testing.T) {
	shape, err := ResolveOutputShape(ort.NewShape(1, 42, 8400), 640)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 42, 8400), shape)

	shape, err = ResolveOutputShape(ort.NewShape(1, 42, -1), 640)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 42, 8400), shape)

	_, err = ResolveOutputShape(ort.NewShape(1, 4, 8400), 640)
	assert.Error(t, err)

	_, err = ResolveOutputShape(ort.NewShape(1, 8400), 640)
	assert.Error(t, err)
}

func TestSessionRunClosed(t *testing.T) {
	s := &Session{}
	assert.Error(t, s.Run())
	assert.NoError(t, s.Close())
}

func TestNamesFromMetadata(t *testing.T) {
	var asked string
	names, ok, err := namesFromMetadata(func(key string) (string, bool, error) {
		asked = key
		return "{0: 'Apple Scab Leaf', 1: 'Tomato leaf late blight'}", true, nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, NamesMetadataKey, asked)
	assert.Equal(t, Names{"Apple Scab Leaf", "Tomato leaf late blight"}, names)

	names, ok, err = namesFromMetadata(func(string) (string, bool, error) { return "", false, nil })
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, names)

	boom := errors.New("metadata unavailable")
	_, _, err = namesFromMetadata(func(string) (string, bool, error) { return "", false, boom })
	assert.Equal(t, boom, errors.Cause(err))

	_, ok, err = namesFromMetadata(func(string) (string, bool, error) { return "{}", true, nil })
	assert.Error(t, err)
	assert.False(t, ok)
}
