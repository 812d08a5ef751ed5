package onewire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodReading = "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
		wantErr error
	}{
		{"positive", goodReading, 23.125, nil},
		{"negative", "ff ff : crc=a1 YES\nff ff t=-1250\n", -1.25, nil},
		{"crc failure", "72 01 : crc=00 NO\n72 01 t=23125\n", 0, ErrCRC},
		{"power-on reset", "50 05 : crc=1c YES\n50 05 t=85000\n", 0, ErrNotReady},
		{"single line", "72 01 : crc=57 YES\n", 0, ErrMalformed},
		{"missing t=", "72 01 : crc=57 YES\n72 01 57\n", 0, ErrMalformed},
		{"bad number", "72 01 : crc=57 YES\n72 01 t=abc\n", 0, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.content)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSysfsReadCelsius(t *testing.T) {
	base := t.TempDir()
	id := "28-0316a2795cff"
	require.NoError(t, os.MkdirAll(filepath.Join(base, id), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, id, "w1_slave"), []byte(goodReading), 0644))

	s := NewSysfs(base, id)
	got, err := s.ReadCelsius()
	require.NoError(t, err)
	assert.InDelta(t, 23.125, got, 1e-9)
}

func TestSysfsMissingSensor(t *testing.T) {
	s := NewSysfs(t.TempDir(), "28-missing")
	_, err := s.ReadCelsius()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFakeThermometer(t *testing.T) {
	f := NewFakeThermometer(20.5, 21)

	v, err := f.ReadCelsius()
	require.NoError(t, err)
	assert.Equal(t, 20.5, v)
	v, _ = f.ReadCelsius()
	assert.Equal(t, 21.0, v)
	v, _ = f.ReadCelsius()
	assert.Equal(t, 21.0, v, "last reading repeats")

	f.Err = errors.New("bus reset")
	_, err = f.ReadCelsius()
	assert.EqualError(t, err, "bus reset")
	assert.Equal(t, 4, f.Calls)
}

func TestAsyncCachesLatest(t *testing.T) {
	src := NewFakeThermometer(19.5, 20.25)
	a := NewAsync(src, time.Second)

	_, err := a.ReadCelsius()
	assert.ErrorIs(t, err, ErrNotReady, "no poll yet")
	assert.Equal(t, 0, src.Calls)

	a.Poll()
	v, err := a.ReadCelsius()
	require.NoError(t, err)
	assert.Equal(t, 19.5, v)

	// Reads don't touch the source.
	a.ReadCelsius()
	assert.Equal(t, 1, src.Calls)

	src.Err = ErrCRC
	a.Poll()
	_, err = a.ReadCelsius()
	assert.ErrorIs(t, err, ErrCRC)

	src.Err = nil
	a.Poll()
	v, err = a.ReadCelsius()
	require.NoError(t, err)
	assert.Equal(t, 20.25, v)
}

func TestAsyncRunStopsOnCancel(t *testing.T) {
	src := NewFakeThermometer(22)
	a := NewAsync(src, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		v, err := a.ReadCelsius()
		return err == nil && v == 22
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
