// Package sh provides the interactive shell over a link.
package sh

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"github.com/golang/protobuf/jsonpb"

	"github.com/robotalks/framelink/pkg/env"
	"github.com/robotalks/framelink/pkg/l0/frame"
	"github.com/robotalks/framelink/pkg/l1/comm/mqtt"
	"github.com/robotalks/framelink/pkg/metrics"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool
	RemoteID    string

	Shell   *ishell.Shell
	Config  *env.Config
	Session *Session

	queue *mqtt.Queue
}

const (
	shellKey     = "$shell"
	closedPrompt = "[none] > "
)

// DefaultRecvTimeout is the default wait of the recv command.
const DefaultRecvTimeout = time.Second

var (
	// flags

	evalOnly   bool
	outputJSON bool
	remoteID   string

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&OpenCmd,
		&ConnectCmd,
		&CloseCmd,
		&SendCmd,
		&SendPartsCmd,
		&RecvCmd,
		&CountCmd,
		&StatsCmd,
		&ResetCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&remoteID, "remote", remoteID, "Connect to a bridged link instead of opening the device.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		RemoteID:    remoteID,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpened wraps command func requires an opened link.
func MustBeOpened(fn func(c *ishell.Context, s *Session)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		sess := ShellFrom(c).Session
		if sess == nil {
			c.Err(fmt.Errorf("no link opened"))
			return
		}
		fn(c, sess)
	}
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Queue returns the connected MQTT queue, connecting on first use.
func (s *Shell) Queue() (*mqtt.Queue, error) {
	if s.queue != nil {
		return s.queue, nil
	}
	q, err := s.Config.NewQueue(false)
	if err != nil {
		return nil, err
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.queue = q
	return q, nil
}

// Discover lists the bridged links.
func (s *Shell) Discover() ([]mqtt.LinkInfo, error) {
	q, err := s.Queue()
	if err != nil {
		return nil, err
	}
	return mqtt.Discover(context.TODO(), q, mqtt.DefaultDiscoverTimeout)
}

// SelectLink discovers links and asks for a choice.
func (s *Shell) SelectLink() (*mqtt.LinkInfo, error) {
	infos, err := s.Discover()
	if err != nil || len(infos) == 0 {
		return nil, err
	}
	var index int
	if len(infos) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 links discovered in non-interactive mode")
		}
		items := make([]string, len(infos))
		for n, info := range infos {
			items[n] = FormatInfo(info)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return &infos[index], nil
}

// Open opens the local device.
func (s *Shell) Open(device string) error {
	conf := *s.Config
	if device != "" {
		conf.Device = device
	}
	sess, err := OpenLocal(&conf)
	if err != nil {
		return err
	}
	s.use(sess)
	return nil
}

// Connect connects a bridged link.
func (s *Shell) Connect(id string) error {
	q, err := s.Queue()
	if err != nil {
		return err
	}
	s.use(OpenRemote(q, id))
	return nil
}

func (s *Shell) use(sess *Session) {
	s.Close()
	s.Session = sess
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", sess.Name))
}

// Close closes current link.
func (s *Shell) Close() {
	if s.Session != nil {
		if err := s.Session.Close(); err != nil {
			glog.Warningf("close %s: %v", s.Session, err)
		}
		s.Session = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.RemoteID != "" {
		if err := s.Connect(s.RemoteID); err != nil {
			glog.Exitf("connect %q failed: %v", s.RemoteID, err)
		}
	} else if s.AutoOpen {
		if err := s.Open(""); err != nil {
			glog.Exitf("open %q failed: %v", s.Config.Device, err)
		}
	}
	defer func() {
		s.Close()
		if s.queue != nil {
			s.queue.Close()
		}
	}()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exitln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exitln("command expected")
}

// Print prints v in JSON or the text from format.
func (s *Shell) Print(c *ishell.Context, v interface{}, text string) {
	if !s.OutputJSON {
		c.Println(text)
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// FormatInfo prints LinkInfo into friendly string for display.
func FormatInfo(info mqtt.LinkInfo) string {
	return fmt.Sprintf("%s: %s (buf %d, slots %d)", info.ID, info.Device, info.BufSize, info.Slots)
}

// ParseHex parses a packet from hex digits. Separators ':' '-' '_' are
// ignored.
func ParseHex(args ...string) ([]byte, error) {
	str := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '_':
			return -1
		}
		return r
	}, strings.Join(args, ""))
	return hex.DecodeString(str)
}

// BuildPacket returns a func appending the parts to a packet. A part is
// hex bytes or a typed integer: u8=N, u16=N (high byte first).
func BuildPacket(parts ...string) (func(tx *frame.TX), error) {
	var steps []func(tx *frame.TX)
	for _, part := range parts {
		typ, val, typed := strings.Cut(part, "=")
		if !typed {
			data, err := ParseHex(part)
			if err != nil {
				return nil, fmt.Errorf("invalid %q: %w", part, err)
			}
			steps = append(steps, func(tx *frame.TX) { tx.Append(data...) })
			continue
		}
		switch typ {
		case "u8":
			n, err := strconv.ParseUint(val, 0, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid %q: %w", part, err)
			}
			steps = append(steps, func(tx *frame.TX) { tx.AppendU8(uint8(n)) })
		case "u16":
			n, err := strconv.ParseUint(val, 0, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid %q: %w", part, err)
			}
			steps = append(steps, func(tx *frame.TX) { tx.AppendU16(uint16(n)) })
		default:
			return nil, fmt.Errorf("unknown type %q", typ)
		}
	}
	return func(tx *frame.TX) {
		for _, step := range steps {
			step(tx)
		}
	}, nil
}

func printReport(c *ishell.Context, s *Shell, r *metrics.Report) {
	if !s.OutputJSON {
		c.Println(r.String())
		return
	}
	out, err := (&jsonpb.Marshaler{}).MarshalToString(r.Struct())
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(out)
}

var (
	// DiscoverCmd discovers bridged links.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infos, err := s.Discover()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(infos) == 0 {
					// in case infos is nil, make it empty slice.
					infos = []mqtt.LinkInfo{}
				}
				s.Print(c, infos, "")
				return
			}
			if len(infos) == 0 {
				c.Println("No links found")
				return
			}
			for _, info := range infos {
				c.Println(FormatInfo(info))
			}
		},
	}

	// OpenCmd opens a local device.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[DEVICE]",
		Func: func(c *ishell.Context) {
			var device string
			if len(c.Args) > 0 {
				device = c.Args[0]
			}
			if err := ShellFrom(c).Open(device); err != nil {
				c.Err(err)
			}
		},
	}

	// ConnectCmd connects a bridged link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var id string
			if len(c.Args) > 0 {
				id = c.Args[0]
			} else {
				info, err := s.SelectLink()
				if err != nil {
					c.Err(err)
					return
				}
				if info == nil {
					c.Err(fmt.Errorf("no link discovered"))
					return
				}
				id = info.ID
			}
			if err := s.Connect(id); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes current link.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"disconnect", "d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// SendCmd sends packets, one per argument.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "HEX...",
		Func: MustBeOpened(func(c *ishell.Context, sess *Session) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("HEX required"))
				return
			}
			for _, arg := range c.Args {
				pkt, err := ParseHex(arg)
				if err != nil {
					c.Err(fmt.Errorf("invalid %q: %w", arg, err))
					return
				}
				if err := sess.Send(pkt); err != nil {
					c.Err(err)
					return
				}
			}
		}),
	}

	// SendPartsCmd builds one packet in place from parts.
	SendPartsCmd = ishell.Cmd{
		Name:    "sendp",
		Aliases: []string{"sp"},
		Help:    "PART... (HEX, u8=N or u16=N)",
		Func: MustBeOpened(func(c *ishell.Context, sess *Session) {
			build, err := BuildPacket(c.Args...)
			if err != nil {
				c.Err(err)
				return
			}
			if err := sess.SendWith(build); err != nil {
				c.Err(err)
			}
		}),
	}

	// RecvCmd waits and prints a received packet.
	RecvCmd = ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "[TIMEOUT]",
		Func: MustBeOpened(func(c *ishell.Context, sess *Session) {
			timeout := DefaultRecvTimeout
			if len(c.Args) > 0 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(fmt.Errorf("invalid TIMEOUT: %w", err))
					return
				}
				timeout = d
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			pkt, err := sess.Recv(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			str := hex.EncodeToString(pkt)
			ShellFrom(c).Print(c, map[string]interface{}{"packet": str, "size": len(pkt)}, str)
		}),
	}

	// CountCmd prints the number of packets ready to read.
	CountCmd = ishell.Cmd{
		Name:    "count",
		Aliases: []string{"n"},
		Help:    "",
		Func: MustBeOpened(func(c *ishell.Context, sess *Session) {
			n := sess.Pending()
			ShellFrom(c).Print(c, map[string]int{"count": n}, strconv.Itoa(n))
		}),
	}

	// StatsCmd prints the link counters.
	StatsCmd = ishell.Cmd{
		Name:    "stats",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeOpened(func(c *ishell.Context, sess *Session) {
			r, err := sess.Report()
			if err != nil {
				c.Err(err)
				return
			}
			printReport(c, ShellFrom(c), r)
		}),
	}

	// ResetCmd resets the link.
	ResetCmd = ishell.Cmd{
		Name:    "reset",
		Aliases: []string{},
		Help:    "",
		Func: MustBeOpened(func(c *ishell.Context, sess *Session) {
			if err := sess.Reset(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoOpen(true).Run(flag.Args()...)
}
