package host

import (
	"fmt"

	"github.com/ardnew/softmmc/pkg"
)

// DMAMode describes how many physically contiguous runs the DMA engine can
// describe for one data phase. It is one of [SingleRun] or [DescriptorChain].
type DMAMode interface {
	maxRuns() int
	String() string
}

// SingleRun is system-address DMA: the data phase must map to one
// contiguous run. The engine pauses at each address boundary and is resumed
// by rewriting the system address.
type SingleRun struct{}

func (SingleRun) maxRuns() int { return 1 }

func (SingleRun) String() string { return "single-run" }

// DescriptorChain is descriptor-table DMA with up to MaxDescriptors runs.
// The request engine does not drive descriptor tables; [Config.Validate]
// rejects it.
type DescriptorChain struct {
	MaxDescriptors int
}

func (d DescriptorChain) maxRuns() int { return d.MaxDescriptors }

func (d DescriptorChain) String() string {
	return fmt.Sprintf("descriptor-chain(%d)", d.MaxDescriptors)
}

// coalesce merges adjacent, physically contiguous segments, dropping empty
// ones.
func coalesce(sg []Segment) []Segment {
	runs := make([]Segment, 0, len(sg))
	for _, s := range sg {
		if s.Len == 0 {
			continue
		}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.Addr+uint64(last.Len) == s.Addr && uint64(last.Len)+uint64(s.Len) <= MaxTransferBytes {
				last.Len += s.Len
				continue
			}
		}
		runs = append(runs, s)
	}
	return runs
}

// mapRuns validates data's scatter list against the DMA mode and returns the
// merged runs. No hardware is touched.
func (h *Host) mapRuns(data *DataTransfer) ([]Segment, error) {
	runs := coalesce(data.SG)
	if len(runs) == 0 {
		return nil, pkg.NewConfigurationError("data.sg",
			fmt.Errorf("%w: empty scatter list", pkg.ErrInvalidRequest))
	}
	if limit := h.cfg.DMA.maxRuns(); len(runs) > limit {
		return nil, pkg.NewConfigurationError("data.sg",
			fmt.Errorf("%w: %d runs, %s allows %d", pkg.ErrTooManySegments, len(runs), h.cfg.DMA, limit))
	}
	var total uint64
	for _, r := range runs {
		total += uint64(r.Len)
	}
	if total < data.Len() {
		return nil, pkg.NewConfigurationError("data.sg",
			fmt.Errorf("%w: scatter list holds %d of %d bytes", pkg.ErrInvalidRequest, total, data.Len()))
	}
	return runs, nil
}

// prepareData maps data and programs the DMA address and block registers.
// Must be called with h.mu held.
func (h *Host) prepareData(data *DataTransfer) {
	runs := coalesce(data.SG)
	h.mapped = data
	h.ctrl.SetSysAddress(runs[0].Addr)
	h.ctrl.SetBlockSize(data.BlockSize)
	h.ctrl.SetBlockCount(data.Blocks)

	pkg.LogDebug(pkg.ComponentDMA, "mapped",
		"addr", fmt.Sprintf("%#x", runs[0].Addr),
		"blksz", data.BlockSize,
		"blocks", data.Blocks,
		"dir", data.Dir)
}

// unmapData releases the current mapping, if any. Must be called with h.mu
// held.
func (h *Host) unmapData() {
	if h.mapped == nil {
		return
	}
	pkg.LogDebug(pkg.ComponentDMA, "unmapped", "dir", h.mapped.Dir)
	h.mapped = nil
}
