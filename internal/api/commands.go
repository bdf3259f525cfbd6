package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atlas-desktop/portfolio-replay/internal/session"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgs        = errors.New("invalid command arguments")
)

// CommandArgs carries the arguments of every command; each command reads
// the fields it needs
type CommandArgs struct {
	Index  *int     `json:"index,omitempty"`
	Delta  int      `json:"delta,omitempty"`
	Ms     int      `json:"ms,omitempty"`
	X      float64  `json:"x,omitempty"`
	Y      float64  `json:"y,omitempty"`
	X0     *float64 `json:"x0,omitempty"`
	X1     *float64 `json:"x1,omitempty"`
	Start  *int     `json:"start,omitempty"`
	End    *int     `json:"end,omitempty"`
	Kind   string   `json:"kind,omitempty"`
	Width  int      `json:"width,omitempty"`
	Height int      `json:"height,omitempty"`
	ID     string   `json:"id,omitempty"`
	Color  string   `json:"color,omitempty"`
	Name   string   `json:"name,omitempty"`
}

// Commands maps command names onto session operations
type Commands struct {
	session *session.Session
}

// NewCommands creates a dispatcher for a session
func NewCommands(sess *session.Session) *Commands {
	return &Commands{session: sess}
}

// ParseFilterKind accepts the anomaly kind names and their short forms
func ParseFilterKind(s string) (types.AnomalyKind, error) {
	switch strings.ToLower(s) {
	case "fp", "false_positive", "false_positives", "falsepositives":
		return types.AnomalyFalsePositive, nil
	case "fn", "false_negative", "false_negatives", "falsenegatives":
		return types.AnomalyFalseNegative, nil
	}
	return types.AnomalyNone, fmt.Errorf("filter %q: %w", s, ErrBadArgs)
}

// Dispatch runs one command and returns its result
func (c *Commands) Dispatch(ctx context.Context, command string, args CommandArgs) (interface{}, error) {
	s := c.session

	switch command {
	case "play":
		return map[string]bool{"playing": s.Play()}, nil
	case "pause":
		s.Pause()
		return nil, nil
	case "seek":
		if args.Index == nil {
			return nil, fmt.Errorf("seek needs index: %w", ErrBadArgs)
		}
		return map[string]int{"index": s.Seek(*args.Index)}, nil
	case "step":
		delta := args.Delta
		if delta == 0 {
			delta = 1
		}
		return map[string]int{"index": s.Step(delta)}, nil
	case "speed":
		return map[string]int{"speedMs": s.SetSpeed(args.Ms)}, nil

	case "zoom":
		switch {
		case args.X0 != nil && args.X1 != nil:
			return map[string]bool{"zoomed": s.SetZoomPixels(*args.X0, *args.X1)}, nil
		case args.Start != nil && args.End != nil:
			return map[string]bool{"zoomed": s.SetZoomRange(*args.Start, *args.End)}, nil
		}
		return nil, fmt.Errorf("zoom needs x0/x1 or start/end: %w", ErrBadArgs)
	case "reset_zoom":
		s.ResetZoom()
		return nil, nil
	case "toggle_filter":
		kind, err := ParseFilterKind(args.Kind)
		if err != nil {
			return nil, err
		}
		return s.ToggleFilter(kind)
	case "canvas":
		if args.Width <= 0 || args.Height <= 0 {
			return nil, fmt.Errorf("canvas needs a positive size: %w", ErrBadArgs)
		}
		s.SetCanvas(args.Width, args.Height)
		return nil, nil

	case "pointer_move":
		s.PointerMove(args.X, args.Y)
		return nil, nil
	case "pointer_down":
		return map[string]bool{"dragging": s.PointerDown(args.X, args.Y)}, nil
	case "pointer_up":
		return s.PointerUp(args.X, args.Y), nil
	case "pointer_leave":
		s.PointerLeave()
		return nil, nil
	case "click":
		return s.Click(args.X, args.Y), nil
	case "dblclick":
		s.DoubleClick()
		return nil, nil
	case "pinned_next":
		return map[string]bool{"moved": s.PinnedNext()}, nil
	case "pinned_prev":
		return map[string]bool{"moved": s.PinnedPrev()}, nil

	case "select":
		return nil, s.SelectDataset(args.ID)
	case "remove":
		return nil, s.RemoveDataset(args.ID)
	case "color":
		color, err := types.ParseRGBColor(args.Color)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrBadArgs)
		}
		return nil, s.SetColor(args.ID, color)
	case "load_store":
		return s.LoadFromStore(ctx, args.Name)

	case "state":
		return s.State(), nil
	case "metrics":
		m, ok := s.Metrics()
		if !ok {
			return nil, nil
		}
		return m, nil
	case "positions":
		p, ok := s.Positions()
		if !ok {
			return nil, nil
		}
		return p, nil
	case "report":
		return s.Report(args.ID)
	}

	return nil, fmt.Errorf("%q: %w", command, ErrUnknownCommand)
}
