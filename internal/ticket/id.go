package ticket

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID schemes.
const (
	SchemeRandom     = "random"
	SchemeSequential = "sequential"
)

// IDPrefix starts every ticket identifier.
const IDPrefix = "TKT-"

// sequenceName is the counter row used by SequentialIDs.
const sequenceName = "tickets"

// IDGenerator produces unique ticket identifiers.
type IDGenerator interface {
	NextID(ctx context.Context) (string, error)
}

// Sequencer hands out monotonically increasing values. Store implements it.
type Sequencer interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

// RandomIDs generates TKT-<base36 unix millis>-<4 random chars>.
// Uniqueness relies on the store rejecting duplicates.
type RandomIDs struct {
	Now func() time.Time
}

func (g RandomIDs) NextID(_ context.Context) (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("ticket id: %w", err)
	}
	ts := strings.ToUpper(strconv.FormatInt(now().UnixMilli(), 36))
	suffix := strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:4])
	return IDPrefix + ts + "-" + suffix, nil
}

// SequentialIDs generates TKT-<prefix><zero padded counter> from a persisted counter.
type SequentialIDs struct {
	Seq    Sequencer
	Prefix string
	Width  int // digits, default 6
}

func (g SequentialIDs) NextID(ctx context.Context) (string, error) {
	n, err := g.Seq.NextSequence(ctx, sequenceName)
	if err != nil {
		return "", fmt.Errorf("ticket id: %w", err)
	}
	width := g.Width
	if width <= 0 {
		width = 6
	}
	return fmt.Sprintf("%s%s%0*d", IDPrefix, g.Prefix, width, n), nil
}

// NewIDGenerator returns the generator for scheme.
func NewIDGenerator(scheme, prefix string, seq Sequencer) (IDGenerator, error) {
	switch scheme {
	case "", SchemeRandom:
		return RandomIDs{}, nil
	case SchemeSequential:
		if seq == nil {
			return nil, fmt.Errorf("ticket id: sequential scheme needs a sequencer")
		}
		return SequentialIDs{Seq: seq, Prefix: prefix}, nil
	default:
		return nil, fmt.Errorf("ticket id: unknown scheme %q", scheme)
	}
}
