package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testZone = time.FixedZone("CET", 3600)

var testLoc = Location{Latitude: 60.7249, Longitude: 9.0365}

func TestLocationKey(t *testing.T) {
	assert.Equal(t, "60.7249:9.0365", testLoc.Key())
	assert.Equal(t, testLoc.Key(), Location{Latitude: 60.72491, Longitude: 9.03649}.Key())
}

func TestMergeSamples_LaterSetWinsAndSorted(t *testing.T) {
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, testZone)
	history := []TemperatureSample{
		{Time: base.Add(2 * time.Hour), TemperatureC: 2},
		{Time: base, TemperatureC: 0},
		{Time: base.Add(time.Hour), TemperatureC: 1},
	}
	forecast := []TemperatureSample{
		{Time: base.Add(2*time.Hour + 20*time.Minute), TemperatureC: 20},
		{Time: base.Add(3 * time.Hour), TemperatureC: 3},
	}

	merged := MergeSamples(history, forecast)
	require.Len(t, merged, 4)
	for i, s := range merged {
		assert.True(t, s.Time.Equal(base.Add(time.Duration(i)*time.Hour)))
	}
	assert.Equal(t, 20.0, merged[2].TemperatureC)
	assert.Nil(t, MergeSamples(nil, nil))
}

func TestMergeSamples_KeepsRepeatedDSTHour(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)
	from := time.Date(2025, 10, 25, 22, 0, 0, 0, time.UTC)

	var samples []TemperatureSample
	for i := 0; i < 6; i++ {
		samples = append(samples, TemperatureSample{
			Time:         from.Add(time.Duration(i) * time.Hour).In(oslo),
			TemperatureC: float64(i),
		})
	}

	merged := MergeSamples(samples)
	require.Len(t, merged, 6)
	for i, s := range merged {
		assert.True(t, s.Time.Equal(from.Add(time.Duration(i)*time.Hour)))
		assert.Equal(t, float64(i), s.TemperatureC)
	}

	v, ok := SampleAt(merged, time.Date(2025, 10, 26, 0, 20, 0, 0, time.UTC).In(oslo))
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestSampleAt(t *testing.T) {
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, testZone)
	samples := MergeSamples([]TemperatureSample{
		{Time: base, TemperatureC: 1},
		{Time: base.Add(2 * time.Hour), TemperatureC: 3},
	})

	v, ok := SampleAt(samples, base.Add(30*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = SampleAt(samples, base.Add(time.Hour))
	assert.False(t, ok)

	_, ok = SampleAt(samples, base.Add(5*time.Hour))
	assert.False(t, ok)
}

// --- RateLimiter ---

func TestRateLimiter_SpacesCalls(t *testing.T) {
	clock := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration
	r := NewRateLimiter(time.Second)
	r.now = func() time.Time { return clock }
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}
	ctx := context.Background()

	require.NoError(t, r.Wait(ctx))
	assert.Empty(t, slept)

	clock = clock.Add(300 * time.Millisecond)
	require.NoError(t, r.Wait(ctx))
	require.Len(t, slept, 1)
	assert.Equal(t, 700*time.Millisecond, slept[0])

	clock = clock.Add(2 * time.Second)
	require.NoError(t, r.Wait(ctx))
	assert.Len(t, slept, 1)
	assert.True(t, r.LastCall().Equal(clock))
}

func TestRateLimiter_CancelledWait(t *testing.T) {
	r := NewRateLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Wait(ctx))

	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestRateLimiter_NilAndDisabled(t *testing.T) {
	var r *RateLimiter
	assert.NoError(t, r.Wait(context.Background()))

	off := NewRateLimiter(0)
	off.sleep = func(context.Context, time.Duration) error {
		t.Fatal("disabled limiter must not sleep")
		return nil
	}
	assert.NoError(t, off.Wait(context.Background()))
	assert.NoError(t, off.Wait(context.Background()))
}

// --- SampleCache ---

func TestSampleCache_TTL(t *testing.T) {
	clock := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewSampleCache()
	c.now = func() time.Time { return clock }
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, testZone)
	key := newCacheKey(testLoc, KindHistorical, from, from.AddDate(0, 0, 2))
	samples := []TemperatureSample{{Time: from, TemperatureC: 4}}

	c.Put(key, samples, time.Hour)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, samples, got)

	other := newCacheKey(testLoc, KindHistorical, from, from.AddDate(0, 0, 3))
	_, ok = c.Get(other)
	assert.False(t, ok)

	clock = clock.Add(time.Hour)
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	c.Put(key, samples, 0)
	assert.Zero(t, c.Len())
}

func TestSampleCache_Purge(t *testing.T) {
	clock := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewSampleCache()
	c.now = func() time.Time { return clock }
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, testZone)

	c.Put(newCacheKey(testLoc, KindForecast, day, time.Time{}), nil, 30*time.Minute)
	c.Put(newCacheKey(testLoc, KindHistorical, day, day), nil, 24*time.Hour)

	clock = clock.Add(time.Hour)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

// --- Service ---

type fakeProvider struct {
	name     string
	samples  []TemperatureSample
	err      error
	calls    atomic.Int32
	release  chan struct{}
	lastFrom time.Time
	lastTo   time.Time
	mu       sync.Mutex
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) FetchHistorical(_ context.Context, _ Location, from, to time.Time) ([]TemperatureSample, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.lastFrom, p.lastTo = from, to
	p.mu.Unlock()
	return p.samples, p.err
}

func (p *fakeProvider) FetchForecastAndToday(context.Context, Location) ([]TemperatureSample, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	return p.samples, p.err
}

func newTestService(now time.Time, providers ...SampleProvider) *Service {
	s := NewService(providers, nil, ServiceConfig{
		TimeZone:    testZone,
		HistoryTTL:  24 * time.Hour,
		ForecastTTL: 30 * time.Minute,
	}, nil)
	s.now = func() time.Time { return now }
	return s
}

func someSamples(from time.Time, n int) []TemperatureSample {
	out := make([]TemperatureSample, n)
	for i := range out {
		out[i] = TemperatureSample{Time: from.Add(time.Duration(i) * time.Hour), TemperatureC: float64(i)}
	}
	return out
}

func TestService_HistoricalNeverAsksForToday(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, testZone)
	p := &fakeProvider{name: "p", samples: someSamples(now, 3)}
	s := newTestService(now, p)
	ctx := context.Background()

	got, err := s.FetchHistorical(ctx, testLoc, now.AddDate(0, 0, -3), now)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.FetchHistorical(ctx, testLoc, now, now.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.FetchHistorical(ctx, testLoc, now.AddDate(0, 0, -1), now.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Zero(t, p.calls.Load())
}

func TestService_HistoricalIsCached(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, testZone)
	day := time.Date(2024, 3, 8, 0, 0, 0, 0, testZone)
	p := &fakeProvider{name: "p", samples: someSamples(day, 48)}
	s := newTestService(now, p)
	ctx := context.Background()

	first, err := s.FetchHistorical(ctx, testLoc, day.Add(13*time.Hour), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	second, err := s.FetchHistorical(ctx, testLoc, day, day.AddDate(0, 0, 1).Add(5*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.True(t, p.lastFrom.Equal(day), "range is normalised to whole dates")
}

func TestService_FailsOverInOrder(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, testZone)
	broken := &fakeProvider{name: "broken", err: errors.New("HTTP 500")}
	empty := &fakeProvider{name: "empty"}
	good := &fakeProvider{name: "good", samples: someSamples(now, 2)}
	s := newTestService(now, broken, empty, good)

	got, err := s.FetchForecastAndToday(context.Background(), testLoc)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), broken.calls.Load())
	assert.Equal(t, int32(1), empty.calls.Load())
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestService_AllProvidersFail(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, testZone)
	a := &fakeProvider{name: "a", err: errors.New("timeout")}
	b := &fakeProvider{name: "b", err: errors.New("HTTP 503")}
	s := newTestService(now, a, b)

	_, err := s.FetchForecastAndToday(context.Background(), testLoc)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorContains(t, err, "timeout")
	assert.ErrorContains(t, err, "HTTP 503")

	// Failures are not cached.
	_, err = s.FetchForecastAndToday(context.Background(), testLoc)
	require.Error(t, err)
	assert.Equal(t, int32(2), a.calls.Load())

	_, err = newTestService(now).FetchForecastAndToday(context.Background(), testLoc)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestService_CollapsesConcurrentFetches(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, testZone)
	p := &fakeProvider{name: "p", samples: someSamples(now, 2), release: make(chan struct{})}
	s := newTestService(now, p)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.FetchForecastAndToday(context.Background(), testLoc)
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load())
}

func TestService_CurrentTemperature(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, testZone)
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, testZone)
	p := &fakeProvider{name: "p", samples: someSamples(today, 24)}
	s := newTestService(now, p)

	cur, err := s.CurrentTemperature(context.Background(), testLoc)
	require.NoError(t, err)
	assert.Equal(t, 14.0, cur.TemperatureC)
	assert.True(t, cur.Time.Equal(today.Add(14*time.Hour)))

	p2 := &fakeProvider{name: "p", samples: someSamples(today, 3)}
	_, err = newTestService(now, p2).CurrentTemperature(context.Background(), testLoc)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
