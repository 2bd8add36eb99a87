package audio

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	errs         []error
	pcm          []int16
	calibrated   float64
	calibrateErr error

	listens    int
	calibrates int
	thresholds []float64
}

func (f *fakeListener) Calibrate(ctx context.Context, d time.Duration) (float64, error) {
	f.calibrates++
	return f.calibrated, f.calibrateErr
}

func (f *fakeListener) Listen(ctx context.Context, p Profile, threshold float64) ([]int16, error) {
	f.listens++
	f.thresholds = append(f.thresholds, threshold)
	if f.listens <= len(f.errs) && f.errs[f.listens-1] != nil {
		return nil, f.errs[f.listens-1]
	}
	if f.pcm == nil {
		return nil, ErrCaptureTimeout
	}
	return f.pcm, nil
}

type fakeMethod struct {
	name  string
	fs    afero.Fs
	size  int
	err   error
	order *[]string
	calls int
}

func (m *fakeMethod) Name() string { return m.name }

func (m *fakeMethod) Record(ctx context.Context, path string) error {
	m.calls++
	*m.order = append(*m.order, m.name)
	if m.err != nil {
		return m.err
	}
	return afero.WriteFile(m.fs, path, make([]byte, m.size), 0o644)
}

func testOptions() Options {
	return Options{
		SampleRate:       16000,
		Retries:          3,
		DeviceBackoff:    time.Millisecond,
		MinArtifactBytes: 1000,
		Fallback:         true,
		FallbackAttempts: 1,
	}
}

func TestCapturePrimarySucceeds(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := &fakeListener{pcm: make([]int16, 16000)}

	c := NewCapturer(l, nil, fs, testOptions(), nil)
	res, err := c.Capture(context.Background(), testProfile(), "/work/in.wav")

	require.NoError(t, err)
	assert.Equal(t, MethodPrimary, res.Method)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "/work/in.wav", res.Path)
	assert.Greater(t, res.Size, int64(1000))
	assert.Equal(t, "RIFF", string(res.Data[:4]))
	assert.Equal(t, 1, l.listens)
}

func TestCaptureRetriesThenFallsBackInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := &fakeListener{}
	var order []string

	methods := []Method{
		&fakeMethod{name: "arecord", fs: fs, err: errors.New("no such device"), order: &order},
		&fakeMethod{name: "rec", fs: fs, size: 10, order: &order},
		&fakeMethod{name: "manual", fs: fs, size: 2000, order: &order},
	}

	c := NewCapturer(l, methods, fs, testOptions(), nil)
	res, err := c.Capture(context.Background(), testProfile(), "/work/in.wav")

	require.NoError(t, err)
	assert.Equal(t, 3, l.listens)
	assert.Equal(t, []string{"arecord", "rec", "manual"}, order)
	assert.Equal(t, "manual", res.Method)
	assert.Equal(t, 6, res.Attempts)
	assert.Equal(t, int64(2000), res.Size)
}

func TestCaptureStopsAtFirstValidFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	var order []string

	first := &fakeMethod{name: "arecord", fs: fs, size: 4096, order: &order}
	second := &fakeMethod{name: "rec", fs: fs, size: 4096, order: &order}

	c := NewCapturer(&fakeListener{}, []Method{first, second}, fs, testOptions(), nil)
	res, err := c.Capture(context.Background(), testProfile(), "/work/in.wav")

	require.NoError(t, err)
	assert.Equal(t, "arecord", res.Method)
	assert.Zero(t, second.calls)
}

func TestCaptureExhausted(t *testing.T) {
	fs := afero.NewMemMapFs()
	var order []string

	methods := []Method{
		&fakeMethod{name: "arecord", fs: fs, size: 0, order: &order},
		&fakeMethod{name: "rec", fs: fs, err: errors.New("missing"), order: &order},
	}

	opts := testOptions()
	opts.FallbackAttempts = 2

	c := NewCapturer(&fakeListener{}, methods, fs, opts, nil)
	res, err := c.Capture(context.Background(), testProfile(), "/work/in.wav")

	require.ErrorIs(t, err, ErrCaptureExhausted)
	assert.Nil(t, res)
	assert.Equal(t, []string{"arecord", "arecord", "rec", "rec"}, order)

	exists, _ := afero.Exists(fs, "/work/in.wav")
	assert.False(t, exists)
}

func TestCaptureFallbackDisabled(t *testing.T) {
	fs := afero.NewMemMapFs()
	var order []string
	m := &fakeMethod{name: "arecord", fs: fs, size: 4096, order: &order}

	opts := testOptions()
	opts.Fallback = false

	l := &fakeListener{}
	c := NewCapturer(l, []Method{m}, fs, opts, nil)
	_, err := c.Capture(context.Background(), testProfile(), "/work/in.wav")

	require.ErrorIs(t, err, ErrCaptureExhausted)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Equal(t, 3, l.listens)
	assert.Zero(t, m.calls)
}

func TestCaptureProfileWithoutFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	var order []string
	m := &fakeMethod{name: "arecord", fs: fs, size: 4096, order: &order}

	p := testProfile()
	p.Kind = KindWake
	p.Fallback = false

	c := NewCapturer(&fakeListener{}, []Method{m}, fs, testOptions(), nil)
	_, err := c.Capture(context.Background(), p, "/work/in.wav")

	require.ErrorIs(t, err, ErrCaptureExhausted)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Zero(t, m.calls)
}

func TestCaptureRecoversFromDeviceError(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := &fakeListener{
		errs: []error{fmt.Errorf("%w: invalid channel count", ErrCaptureDevice)},
		pcm:  make([]int16, 8000),
	}

	c := NewCapturer(l, nil, fs, testOptions(), nil)
	res, err := c.Capture(context.Background(), testProfile(), "/work/in.wav")

	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestCaptureRejectsTinyPrimaryArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := &fakeListener{pcm: make([]int16, 10)}

	opts := testOptions()
	opts.Fallback = false

	c := NewCapturer(l, nil, fs, opts, nil)
	_, err := c.Capture(context.Background(), testProfile(), "/work/in.wav")

	require.ErrorIs(t, err, ErrCaptureExhausted)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
	assert.Equal(t, 3, l.listens)
}

func TestCaptureCalibration(t *testing.T) {
	p := testProfile()
	p.DynamicEnergy = true
	p.CalibrationDuration = time.Second

	t.Run("calibrated threshold is used", func(t *testing.T) {
		l := &fakeListener{pcm: make([]int16, 8000), calibrated: 1234}
		c := NewCapturer(l, nil, afero.NewMemMapFs(), testOptions(), nil)

		_, err := c.Capture(context.Background(), p, "/in.wav")
		require.NoError(t, err)
		assert.Equal(t, []float64{1234}, l.thresholds)
	})

	t.Run("calibration failure keeps static threshold", func(t *testing.T) {
		l := &fakeListener{pcm: make([]int16, 8000), calibrateErr: ErrCaptureDevice}
		c := NewCapturer(l, nil, afero.NewMemMapFs(), testOptions(), nil)

		_, err := c.Capture(context.Background(), p, "/in.wav")
		require.NoError(t, err)
		assert.Equal(t, []float64{p.EnergyThreshold}, l.thresholds)
	})

	t.Run("static profile skips calibration", func(t *testing.T) {
		l := &fakeListener{pcm: make([]int16, 8000)}
		c := NewCapturer(l, nil, afero.NewMemMapFs(), testOptions(), nil)

		_, err := c.Capture(context.Background(), testProfile(), "/in.wav")
		require.NoError(t, err)
		assert.Zero(t, l.calibrates)
	})
}

func TestCaptureCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var order []string
	fs := afero.NewMemMapFs()
	m := &fakeMethod{name: "arecord", fs: fs, size: 4096, order: &order}

	c := NewCapturer(&fakeListener{}, []Method{m}, fs, testOptions(), nil)
	_, err := c.Capture(ctx, testProfile(), "/in.wav")

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.calls)
}
