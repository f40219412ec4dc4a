package vm

import (
	"sync"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"
)

// Clock supplies the epoch at which a message executes.
type Clock interface {
	Now() abi.ChainEpoch
}

// ManualClock only moves when told to, and never backwards.
type ManualClock struct {
	mu    sync.Mutex
	epoch abi.ChainEpoch
}

var _ Clock = (*ManualClock)(nil)

func NewManualClock(epoch abi.ChainEpoch) *ManualClock {
	return &ManualClock{epoch: epoch}
}

func (c *ManualClock) Now() abi.ChainEpoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Advance moves the clock forward by d epochs and returns the new epoch.
func (c *ManualClock) Advance(d abi.ChainEpoch) (abi.ChainEpoch, error) {
	if d < 0 {
		return 0, xerrors.Errorf("cannot advance clock by negative duration %d", d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch += d
	return c.epoch, nil
}

// Set moves the clock to epoch, which must not be before the current epoch.
func (c *ManualClock) Set(epoch abi.ChainEpoch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch < c.epoch {
		return xerrors.Errorf("cannot move clock back from %d to %d", c.epoch, epoch)
	}
	c.epoch = epoch
	return nil
}

// SystemClock reads wall-clock seconds since the unix epoch.
type SystemClock struct{}

var _ Clock = SystemClock{}

func (SystemClock) Now() abi.ChainEpoch {
	return abi.ChainEpoch(time.Now().Unix())
}
