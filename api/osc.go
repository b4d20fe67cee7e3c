package api

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/hypebeast/go-osc/osc"

	"github.com/matt-g-everett/spatx/logging"
)

// OSCPrefix is the address space of inbound OSC commands.
const OSCPrefix = "/anim/"

var oscCommands = []string{"play", "pause", "resume", "stop", "seek", "speed", "select", "stopall"}

// OSCCommands receives /anim/<command> messages over UDP.
type OSCCommands struct {
	addr   string
	cmd    *Commander
	log    logging.Logger
	server *osc.Server
}

// NewOSCCommands creates a command listener on addr (host:port).
func NewOSCCommands(addr string, cmd *Commander, log logging.Logger) (*OSCCommands, error) {
	o := &OSCCommands{addr: addr, cmd: cmd, log: logging.OrNoop(log)}
	d := osc.NewStandardDispatcher()
	for _, name := range oscCommands {
		if err := d.AddMsgHandler(OSCPrefix+name, o.handle); err != nil {
			return nil, err
		}
	}
	o.server = &osc.Server{Addr: addr, Dispatcher: d}
	return o, nil
}

// Serve listens until ctx is cancelled.
func (o *OSCCommands) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", o.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	o.log.Info(ctx, "osc commands listening", logging.String("addr", conn.LocalAddr().String()))
	err = o.server.Serve(conn)
	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (o *OSCCommands) handle(msg *osc.Message) {
	ctx := context.Background()
	name := strings.TrimPrefix(msg.Address, OSCPrefix)
	res, err := o.cmd.Dispatch(ctx, "osc", name, msg.Arguments)
	if err != nil {
		o.log.Warn(ctx, "osc command failed", logging.String("address", msg.Address), logging.Err(err))
		return
	}
	o.log.Debug(ctx, "osc command", logging.String("address", msg.Address), logging.Bool("ok", res.OK))
}
