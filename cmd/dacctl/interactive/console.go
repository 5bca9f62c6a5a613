// Package interactive provides the dacctl command console.
package interactive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"codecctl-go/bus"
	"codecctl-go/drivers/pcm179x"
	"codecctl-go/services/card"
	"codecctl-go/services/mixer"
	"codecctl-go/services/monitor"
)

// System is the assembled board the console drives.
type System struct {
	Card    *card.Card
	Codec   *pcm179x.Device
	Mixer   *mixer.Mixer
	Monitor *monitor.Service
	Conn    *bus.Connection
	Lock    *sync.Mutex // held while a command touches the codec
}

// Console handles the interactive loop.
type Console struct {
	sys System
	rl  *readline.Instance
	out io.Writer
}

// New creates a console reading from the terminal.
func New(sys System) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dac> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{sys: sys, rl: rl, out: rl.Stdout()}, nil
}

// NewBatch creates a console without a terminal, for one-shot commands.
func NewBatch(sys System, w io.Writer) *Console {
	return &Console{sys: sys, out: w}
}

// Stdout returns a writer that does not clobber the prompt; use it for logs.
func (c *Console) Stdout() io.Writer { return c.out }

// Run reads commands until quit, EOF or ctx is done. Bus events are
// printed as they arrive.
func (c *Console) Run(ctx context.Context) {
	defer c.rl.Close()

	if c.sys.Monitor != nil && c.sys.Conn != nil {
		if err := c.sys.Monitor.Start(ctx); err != nil {
			fmt.Fprintf(c.out, "monitor: %v\n", err)
		}
	}
	if c.sys.Conn != nil {
		subs := []*bus.Subscription{
			c.sys.Conn.Subscribe(bus.T("mixer", bus.WildRest)),
			c.sys.Conn.Subscribe(bus.T("card", bus.WildRest)),
			c.sys.Conn.Subscribe(bus.T("codec", bus.WildRest)),
		}
		defer c.sys.Conn.Disconnect()
		for _, s := range subs {
			go c.watch(s)
		}
	}

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}
		if c.Exec(line) {
			return
		}
	}
}

func (c *Console) watch(s *bus.Subscription) {
	for m := range s.Channel() {
		fmt.Fprintf(c.out, "[%s] %+v\n", m.Topic, m.Payload)
	}
}

// Exec runs one command line and reports whether the console should exit.
// Errors are printed.
func (c *Console) Exec(line string) (quit bool) {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(c.out, "parse error: %v\n", err)
		return false
	}
	quit, err = c.ExecArgs(args)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return quit
}

// ExecArgs runs one already tokenised command.
func (c *Console) ExecArgs(args []string) (quit bool, err error) {
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	// The monitor takes the lock itself.
	if cmd == "status" {
		return false, c.cmdStatus()
	}
	if c.sys.Lock != nil {
		c.sys.Lock.Lock()
		defer c.sys.Lock.Unlock()
	}

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "open":
		err = c.cmdOpen()
	case "hw":
		err = c.cmdHW(args)
	case "start":
		err = c.sys.Card.Start()
	case "stop":
		err = c.sys.Card.Stop()
	case "close":
		err = c.sys.Card.Close()
	case "mute":
		err = c.cmdMute(args)
	case "state":
		c.cmdState()
	case "list", "ls":
		c.cmdList()
	case "get":
		err = c.cmdGet(args)
	case "set":
		err = c.cmdSet(args)
	case "fade":
		err = c.cmdFade(args)
	case "regs":
		c.cmdRegs()
	case "peek":
		err = c.cmdPeek(args)
	case "poke":
		err = c.cmdPoke(args)
	case "sync":
		err = c.sys.Codec.Sync()
	case "save":
		err = c.cmdSave(args)
	case "load":
		err = c.cmdLoad(args)
	case "quit", "exit", "q":
		return true, nil
	default:
		err = fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
	return false, err
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
DAC Commands:
  Stream:
    open                         - Open a stream, list usable formats
    hw <rate> <format> [proto] [width]
                                 - Set stream params (e.g. hw 48000 S24_LE i2s)
    start | stop | close         - Unmute, mute, end the stream
    mute on|off                  - Set codec soft mute directly
    state                        - Show codec session state

  Mixer:
    list                         - List controls
    get "<control>"              - Read a control
    set "<control>" <v> [v]      - Write a control
    fade "<control>" <ms> <v> [v] - Ramp a level control over ms
    save <file> | load <file>    - Save or restore all controls

  Registers:
    regs                         - Dump the register mirror
    peek <reg> | poke <reg> <v>  - Raw register access
    sync                         - Rewrite every register from the mirror
    status                       - Read zero-detect flags and device ID

  quit                           - Exit`)
}

func (c *Console) cmdOpen() error {
	fm, err := c.sys.Card.Open()
	if err != nil {
		return err
	}
	var names []string
	for _, f := range []pcm179x.Format{pcm179x.FormatS16LE, pcm179x.FormatS24LE, pcm179x.FormatS32LE, pcm179x.FormatDSDU16LE} {
		if fm.Has(f) {
			names = append(names, f.String())
		}
	}
	fmt.Fprintf(c.out, "formats: %s (max %d Hz)\n", strings.Join(names, " "), c.sys.Card.MaxRate())
	return nil
}

func (c *Console) cmdHW(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: hw <rate> <format> [proto] [width]")
	}
	rate, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	f, err := pcm179x.ParseFormat(args[1])
	if err != nil {
		return err
	}
	p := pcm179x.Params{Rate: uint32(rate), Format: f}
	if len(args) > 2 {
		if p.Protocol, err = pcm179x.ParseProtocol(args[2]); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		w, err := strconv.ParseUint(args[3], 10, 8)
		if err != nil {
			return fmt.Errorf("width: %w", err)
		}
		p.Width = uint8(w)
	}
	return c.sys.Card.HWParams(p)
}

func (c *Console) cmdMute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mute on|off")
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	return c.sys.Codec.SetMute(on)
}

func (c *Console) cmdState() {
	s := c.sys.Codec.State()
	fmt.Fprintf(c.out, "variant:  %s\n", c.sys.Codec.Variant())
	fmt.Fprintf(c.out, "phase:    %s\n", c.sys.Card.Phase())
	fmt.Fprintf(c.out, "stream:   %d Hz %s %s/%d\n", s.Rate, s.Format, s.Protocol, s.Width)
	fmt.Fprintf(c.out, "muted:    %v  dsd: %v\n", s.Muted, s.DSD)
	fmt.Fprintf(c.out, "clock:    0x%02x  spdif in: %v  sel: %v\n", byte(s.Clock), s.SPDIFInput(), s.SPDIFSelect())
	if c.sys.Codec.NeedsReconfigure() {
		fmt.Fprintln(c.out, "device needs reconfigure (run hw)")
	}
}

func (c *Console) cmdList() {
	for _, in := range c.sys.Mixer.List() {
		kind := "int"
		if in.Kind == mixer.KindBool {
			kind = "bool"
		}
		fmt.Fprintf(c.out, "  %-28s %-4s x%d [%d..%d]\n", in.Name, kind, in.Count, in.Min, in.Max)
	}
}

func (c *Console) cmdGet(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <control>")
	}
	v, err := c.sys.Mixer.Get(args[0])
	if err != nil {
		return err
	}
	if args[0] == mixer.CtlVolume {
		fmt.Fprintf(c.out, "%s = %v (%s / %s dB)\n", args[0], v, centiDB(v[0]), centiDB(v[1]))
		return nil
	}
	fmt.Fprintf(c.out, "%s = %v\n", args[0], v)
	return nil
}

func centiDB(v int) string {
	cb := pcm179x.VolumeCentiDB(uint8(v))
	sign := ""
	if cb < 0 {
		sign, cb = "-", -cb
	}
	return fmt.Sprintf("%s%d.%d", sign, cb/100, cb%100/10)
}

func (c *Console) cmdSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set <control> <value>...")
	}
	vals := make([]int, 0, len(args)-1)
	for _, a := range args[1:] {
		if on, err := parseOnOff(a); err == nil {
			vals = append(vals, b2i(on))
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("value %q: %w", a, err)
		}
		vals = append(vals, n)
	}
	changed, err := c.sys.Mixer.Put(args[0], vals)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintln(c.out, "unchanged")
	}
	return nil
}

func (c *Console) cmdFade(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: fade <control> <ms> <value>...")
	}
	ms, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("ms: %w", err)
	}
	vals := make([]int, 0, len(args)-2)
	for _, a := range args[2:] {
		n, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("value %q: %w", a, err)
		}
		vals = append(vals, n)
	}
	return c.sys.Mixer.Fade(context.Background(), args[0], vals, time.Duration(ms)*time.Millisecond)
}

func (c *Console) cmdStatus() error {
	if c.sys.Monitor == nil {
		return fmt.Errorf("no status monitor")
	}
	st, _, err := c.sys.Monitor.Poll()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "zero: L=%v R=%v  id: 0x%02x\n", st.ZeroLeft, st.ZeroRight, st.ID)
	return nil
}

func (c *Console) cmdRegs() {
	for _, r := range pcm179x.WritableRegisters() {
		v, _ := c.sys.Codec.Mirror(r)
		fmt.Fprintf(c.out, "  0x%02x: 0x%02x\n", r, v)
	}
}

func (c *Console) cmdPeek(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: peek <reg>")
	}
	r, err := parseByte(args[0])
	if err != nil {
		return err
	}
	v, err := c.sys.Codec.ReadRegister(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "0x%02x: 0x%02x\n", r, v)
	return nil
}

func (c *Console) cmdPoke(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: poke <reg> <value>")
	}
	r, err := parseByte(args[0])
	if err != nil {
		return err
	}
	v, err := parseByte(args[1])
	if err != nil {
		return err
	}
	return c.sys.Codec.WriteRegister(r, v)
}

func (c *Console) cmdSave(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: save <file>")
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := c.sys.Mixer.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Console) cmdLoad(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load <file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	return c.sys.Mixer.Restore(f)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on|off, got %q", s)
}

func parseByte(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("byte %q: %w", s, err)
	}
	return byte(n), nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
