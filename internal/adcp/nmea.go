package adcp

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/banshee-data/watercolumn/internal/timeutil"
	"github.com/banshee-data/watercolumn/internal/units"
)

var (
	ErrNotNMEA     = errors.New("not an NMEA sentence")
	ErrUnsupported = errors.New("unsupported NMEA sentence")
)

// DefaultNavMaxAge is how long a GPS value stays attachable to ensembles
// after it was received.
const DefaultNavMaxAge = 5 * time.Second

// sentenceType returns the three letter type of a talker sentence, e.g.
// "VTG" for "$GNVTG,...".
func sentenceType(line string) (string, error) {
	if !strings.HasPrefix(line, "$") {
		return "", ErrNotNMEA
	}
	head, _, _ := strings.Cut(line[1:], ",")
	head, _, _ = strings.Cut(head, "*")
	if len(head) < 5 {
		return "", ErrUnsupported
	}
	return head[len(head)-3:], nil
}

// NavTracker keeps the most recent GPS course, speed and heading read from
// an NMEA stream and attaches them to ensembles that arrive without a
// navigation block. It is safe for one writer and many readers.
type NavTracker struct {
	clock  timeutil.Clock
	maxAge time.Duration

	mu        sync.Mutex
	nav       Navigation
	speedAt   time.Time
	bearingAt time.Time
	headingAt time.Time
}

// NewNavTracker creates a tracker. A zero maxAge uses DefaultNavMaxAge.
func NewNavTracker(clock timeutil.Clock, maxAge time.Duration) *NavTracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if maxAge <= 0 {
		maxAge = DefaultNavMaxAge
	}
	return &NavTracker{clock: clock, maxAge: maxAge}
}

// Update parses one NMEA sentence. VTG and HDT sentences update the tracker;
// other sentence types return ErrUnsupported without being parsed. The
// checksum is mandatory.
func (t *NavTracker) Update(line string) error {
	line = strings.TrimSpace(line)
	typ, err := sentenceType(line)
	if err != nil {
		return err
	}
	if typ != nmea.TypeVTG && typ != nmea.TypeHDT {
		return ErrUnsupported
	}

	s, err := nmea.Parse(line)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", typ, err)
	}
	switch m := s.(type) {
	case nmea.VTG:
		t.updateVTG(m)
	case nmea.HDT:
		t.updateHDT(m)
	default:
		return ErrUnsupported
	}
	return nil
}

// updateVTG takes speed from the knots field, falling back to km/h, and the
// bearing from the true track. A mode indicator of N means no fix.
func (t *NavTracker) updateVTG(m nmea.VTG) {
	if len(m.Fields) > 8 && (m.Fields[8] == "N" || m.Fields[8] == "") {
		t.mu.Lock()
		t.nav.SpeedValid = false
		t.nav.BearingValid = false
		t.mu.Unlock()
		return
	}

	var speed float64
	speedOK := true
	switch {
	case m.Fields[4] != "":
		speed = units.ToMPS(m.GroundSpeedKnots, units.KNOTS)
	case m.Fields[6] != "":
		speed = units.ToMPS(m.GroundSpeedKPH, units.KPH)
	default:
		speedOK = false
	}
	bearingOK := m.Fields[0] != ""

	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nav.SpeedValid = speedOK
	if speedOK {
		t.nav.SpeedOverGround = speed
		t.speedAt = now
	}
	t.nav.BearingValid = bearingOK
	if bearingOK {
		t.nav.Bearing = m.TrueTrack
		t.bearingAt = now
	}
}

func (t *NavTracker) updateHDT(m nmea.HDT) {
	ok := len(m.Fields) > 0 && m.Fields[0] != ""
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nav.HeadingValid = ok
	if ok {
		t.nav.Heading = m.Heading
		t.headingAt = now
	}
}

// Current returns the navigation values that are still fresh, or nil when
// nothing valid has been received within maxAge.
func (t *NavTracker) Current() *Navigation {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	nav := t.nav
	if nav.SpeedValid && now.Sub(t.speedAt) > t.maxAge {
		nav.SpeedValid = false
	}
	if nav.BearingValid && now.Sub(t.bearingAt) > t.maxAge {
		nav.BearingValid = false
	}
	if nav.HeadingValid && now.Sub(t.headingAt) > t.maxAge {
		nav.HeadingValid = false
	}
	if !nav.SpeedValid && !nav.BearingValid && !nav.HeadingValid {
		return nil
	}
	return &nav
}

// Attach sets the ensemble's navigation block from the tracker when the
// decoder did not supply one.
func (t *NavTracker) Attach(ens *Ensemble) {
	if ens == nil || ens.Navigation != nil {
		return
	}
	ens.Navigation = t.Current()
}
