package host

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Segment is one entry of a scatter list: a bus address and a length.
type Segment struct {
	Addr uint64
	Len  uint32
}

// DataTransfer is the data phase attached to a command.
type DataTransfer struct {
	Dir       Direction
	BlockSize uint32
	Blocks    uint32
	SG        []Segment

	// Outputs
	BytesXfered uint32
	Err         error
}

// Len returns the number of bytes the transfer moves.
func (d *DataTransfer) Len() uint64 {
	return uint64(d.BlockSize) * uint64(d.Blocks)
}

// Command is a single bus command.
type Command struct {
	Opcode   uint8
	Arg      uint32
	Response ResponseType

	// Data is the data phase carried by this command, if any.
	Data *DataTransfer

	// BusyTimeout is the declared busy period of erase-class commands.
	BusyTimeout time.Duration

	// Outputs
	Resp [4]uint32
	Err  error
}

// String returns "CMD<opcode>".
func (c *Command) String() string {
	return fmt.Sprintf("CMD%d", c.Opcode)
}

// Request is the unit of work submitted to a [Host]: an optional sub-command,
// a primary command, an optional stop command and at most one data phase.
type Request struct {
	Sbc  *Command // Optional SET_BLOCK_COUNT issued before Cmd
	Cmd  *Command // Primary command
	Stop *Command // Optional stop issued after the data phase

	// Data is the data phase of Cmd. If Cmd.Data is nil it is linked on submit.
	Data *DataTransfer

	// Done is invoked exactly once, from the completion goroutine, after the
	// request has finished. It may block and may submit a new request.
	Done func(*Request)

	id string
}

// ID returns the identifier assigned at submission.
func (r *Request) ID() string {
	return r.id
}

// Err combines the terminal errors of every command and the data phase.
// It is nil if the request completed without fault.
func (r *Request) Err() error {
	var err error
	for _, c := range []*Command{r.Sbc, r.Cmd, r.Stop} {
		if c != nil && c.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", c, c.Err))
		}
	}
	if r.Data != nil && r.Data.Err != nil {
		err = multierr.Append(err, fmt.Errorf("data: %w", r.Data.Err))
	}
	return err
}

// commands returns the non-nil commands in issue order.
func (r *Request) commands() []*Command {
	cmds := make([]*Command, 0, 3)
	for _, c := range []*Command{r.Sbc, r.Cmd, r.Stop} {
		if c != nil {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// reset clears outputs left by an earlier submission of the same request.
func (r *Request) reset() {
	for _, c := range r.commands() {
		c.Resp = [4]uint32{}
		c.Err = nil
	}
	if r.Data != nil {
		r.Data.BytesXfered = 0
		r.Data.Err = nil
	}
}
