package navigator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

type fakeSession struct {
	openErr    error
	expands    []bool
	expandErr  error
	candidates []models.CandidateItem
	listErr    error
	panicOn    string

	expandCalls int
	listed      bool
	closed      int
}

func (f *fakeSession) Open(ctx context.Context, url string) error {
	if f.panicOn == "open" {
		panic("page crashed")
	}
	return f.openErr
}

func (f *fakeSession) Expand(ctx context.Context) (bool, error) {
	f.expandCalls++
	if f.expandErr != nil {
		return false, f.expandErr
	}
	if len(f.expands) == 0 {
		return false, nil
	}
	next := f.expands[0]
	f.expands = f.expands[1:]
	return next, nil
}

func (f *fakeSession) ListCandidates(ctx context.Context) ([]models.CandidateItem, error) {
	f.listed = true
	if f.panicOn == "list" {
		panic("lost page")
	}
	return f.candidates, f.listErr
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func factoryFor(s *fakeSession) SessionFactory {
	return func(ctx context.Context) (Session, error) { return s, nil }
}

func newTestNavigator(s *fakeSession, opts Options) (*Navigator, *[]time.Duration) {
	nav := New(factoryFor(s), opts, nil, nil)
	var sleeps []time.Duration
	nav.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return nav, &sleeps
}

var twoItems = []models.CandidateItem{
	{ID: "a", URL: "https://shop.test/ProductDetail/a"},
	{ID: "b", URL: "https://shop.test/ProductDetail/b"},
}

func TestNavigateWithoutExpansions(t *testing.T) {
	session := &fakeSession{candidates: twoItems}
	nav, _ := newTestNavigator(session, Options{ExhaustionChecks: 1, MaxExpansions: 10})

	res, err := nav.Navigate(context.Background(), "https://shop.test/c")
	require.NoError(t, err)

	assert.Equal(t, twoItems, res.Candidates)
	assert.Equal(t, 0, res.Expansions)
	assert.Equal(t, []State{StateIdle, StateOpened, StateExpanding, StateEnumerated, StateClosed}, res.Trace)
	assert.Equal(t, 1, session.expandCalls)
	assert.Equal(t, 1, session.closed)
}

func TestNavigateExpandsUntilExhausted(t *testing.T) {
	session := &fakeSession{expands: []bool{true, true, true}, candidates: twoItems}
	nav, sleeps := newTestNavigator(session, Options{ExhaustionChecks: 1, MaxExpansions: 10})

	res, err := nav.Navigate(context.Background(), "https://shop.test/c")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Expansions)
	assert.Equal(t, 4, session.expandCalls)
	assert.Empty(t, *sleeps)
}

func TestNavigateRequiresConsecutiveMisses(t *testing.T) {
	// A transient miss between two clicks does not end the expansion.
	session := &fakeSession{expands: []bool{true, false, true, false, false}, candidates: twoItems}
	nav, sleeps := newTestNavigator(session, Options{ExhaustionChecks: 2, RecheckDelay: time.Second, MaxExpansions: 10})

	res, err := nav.Navigate(context.Background(), "https://shop.test/c")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Expansions)
	assert.Equal(t, 5, session.expandCalls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *sleeps)
}

func TestNavigateStopsAtMaxExpansions(t *testing.T) {
	expands := make([]bool, 50)
	for i := range expands {
		expands[i] = true
	}
	session := &fakeSession{expands: expands, candidates: twoItems}
	nav, _ := newTestNavigator(session, Options{ExhaustionChecks: 2, MaxExpansions: 5})

	res, err := nav.Navigate(context.Background(), "https://shop.test/c")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Expansions)
	assert.Equal(t, twoItems, res.Candidates)
}

func TestNavigateTreatsExpandErrorAsMiss(t *testing.T) {
	session := &fakeSession{expandErr: errors.New("detached"), candidates: twoItems}
	nav, _ := newTestNavigator(session, Options{ExhaustionChecks: 2, MaxExpansions: 10})

	items, err := nav.Discover(context.Background(), "https://shop.test/c")
	require.NoError(t, err)

	assert.Equal(t, twoItems, items)
	assert.Equal(t, 2, session.expandCalls)
}

func TestNavigateNoCards(t *testing.T) {
	session := &fakeSession{}
	nav, _ := newTestNavigator(session, Options{ExhaustionChecks: 1, MaxExpansions: 10})

	items, err := nav.Discover(context.Background(), "https://shop.test/c")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNavigateClosesSessionOnError(t *testing.T) {
	tests := []struct {
		name    string
		session *fakeSession
		last    State
	}{
		{"open fails", &fakeSession{openErr: errors.New("navigation timeout")}, StateIdle},
		{"listing fails", &fakeSession{listErr: errors.New("page gone")}, StateEnumerated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav, _ := newTestNavigator(tt.session, Options{ExhaustionChecks: 1, MaxExpansions: 10})

			res, err := nav.Navigate(context.Background(), "https://shop.test/c")
			require.Error(t, err)

			assert.Equal(t, 1, tt.session.closed)
			require.GreaterOrEqual(t, len(res.Trace), 2)
			assert.Equal(t, tt.last, res.Trace[len(res.Trace)-2])
			assert.Equal(t, StateClosed, res.Trace[len(res.Trace)-1])
		})
	}
}

func TestNavigateClosesSessionOnPanic(t *testing.T) {
	session := &fakeSession{panicOn: "list"}
	nav, _ := newTestNavigator(session, Options{ExhaustionChecks: 1, MaxExpansions: 10})

	assert.Panics(t, func() {
		_, _ = nav.Navigate(context.Background(), "https://shop.test/c")
	})
	assert.Equal(t, 1, session.closed)
}

func TestNavigateFactoryError(t *testing.T) {
	nav := New(func(ctx context.Context) (Session, error) {
		return nil, errors.New("no browser")
	}, Options{}, nil, nil)

	_, err := nav.Discover(context.Background(), "https://shop.test/c")
	assert.ErrorContains(t, err, "no browser")
}

func TestNavigateCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{candidates: twoItems}
	nav, _ := newTestNavigator(session, Options{ExhaustionChecks: 1, MaxExpansions: 10})

	_, err := nav.Discover(ctx, "https://shop.test/c")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, session.listed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "expanding", StateExpanding.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
