package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/timeutil"
)

func TestHandleNMEA(t *testing.T) {
	nav := adcp.NewNavTracker(timeutil.NewMockClock(time.Unix(0, 0)), 0)

	assert.NoError(t, HandleNMEA(nav, "ADCP> "), "non NMEA lines are ignored")
	assert.NoError(t, HandleNMEA(nav, "$GPGGA,1,2*55"), "unused sentences are ignored")
	assert.Error(t, HandleNMEA(nav, "$GPHDT,274.07,T*00"))
	assert.Nil(t, nav.Current())

	require.NoError(t, HandleNMEA(nav, "$GPHDT,274.07,T*03"))
	require.NotNil(t, nav.Current())
	assert.Equal(t, 274.07, nav.Current().Heading)
}

func TestFeedNavigation(t *testing.T) {
	original := monitoring.Logf
	defer monitoring.SetLogger(original)
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })

	nav := adcp.NewNavTracker(timeutil.NewMockClock(time.Unix(0, 0)), 0)
	lines := make(chan string, 3)
	lines <- "$GPHDT,274.07,T*7F"
	lines <- "$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K,A*25"
	lines <- "$GPHDT,274.07,T*03"
	close(lines)

	require.NoError(t, FeedNavigation(context.Background(), lines, nav))
	cur := nav.Current()
	require.NotNil(t, cur)
	assert.True(t, cur.HeadingValid)
	assert.True(t, cur.SpeedValid)
	assert.Len(t, logged, 1)
}

func TestFeedNavigationStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := FeedNavigation(ctx, make(chan string), adcp.NewNavTracker(nil, 0))
	assert.ErrorIs(t, err, context.Canceled)
}
