package operation

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/amireh/karazeh/internal/files"
)

type swapPhase int

const (
	swapOriginal swapPhase = iota
	swapSwapping
	swapPatched
)

func (p swapPhase) String() string {
	switch p {
	case swapOriginal:
		return "original"
	case swapSwapping:
		return "swapping"
	case swapPatched:
		return "patched"
	}
	return fmt.Sprintf("swap(%d)", int(p))
}

// swap exchanges the live file with the one sitting in slot through temp.
// In swapOriginal the live path holds the original content and slot the
// patched one; in swapPatched it is the other way around. swapSwapping is
// only observed while an exchange is in flight.
type swap struct {
	fm    *files.Manager
	live  string
	slot  string
	temp  string
	phase swapPhase
}

// forward installs the patched content and parks the original in slot.
func (s *swap) forward() error {
	return s.transition(swapOriginal, swapPatched, s.slot, s.live)
}

// reverse restores the original content and parks the patched one in slot.
func (s *swap) reverse() error {
	return s.transition(swapPatched, swapOriginal, s.live, s.slot)
}

func (s *swap) transition(from, to swapPhase, x, y string) error {
	if s.phase != from {
		return fmt.Errorf("swap is %s, expected %s", s.phase, from)
	}
	s.phase = swapSwapping
	if err := s.exchange(x, y); err != nil {
		s.phase = from
		return err
	}
	s.phase = to
	return nil
}

// exchange runs x→temp, y→x, temp→y. A failing step undoes the steps before
// it so both paths keep their previous content.
func (s *swap) exchange(x, y string) error {
	if err := s.fm.Move(x, s.temp); err != nil {
		return files.Wrap("swap: parking "+x, err)
	}
	if err := s.fm.Move(y, x); err != nil {
		undo := s.fm.Move(s.temp, x)
		return files.Wrap("swap: moving "+y, multierr.Append(err, undo))
	}
	if err := s.fm.Move(s.temp, y); err != nil {
		undo := multierr.Combine(s.fm.Move(x, y), s.fm.Move(s.temp, x))
		return files.Wrap("swap: moving into "+y, multierr.Append(err, undo))
	}
	return nil
}
