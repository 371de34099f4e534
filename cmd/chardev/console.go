package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/hostcall"
	"github.com/wippyai/chardev/ioctl"
)

// session is one guest process attached to a system. Commands typed into the
// shell or listed in a script run through it.
type session struct {
	sys   *system
	rt    wazero.Runtime
	calls *hostcall.Module
	guest *hostcall.Guest
}

// newRuntime creates a wazero runtime with the system's host module
// instantiated in it.
func newRuntime(ctx context.Context, sys *system) (wazero.Runtime, *hostcall.Module, error) {
	rt := wazero.NewRuntime(ctx)
	calls := hostcall.New(sys.host, hostcall.DefaultOptions())
	if _, err := calls.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	return rt, calls, nil
}

func newSession(ctx context.Context, sys *system) (*session, error) {
	rt, calls, err := newRuntime(ctx, sys)
	if err != nil {
		return nil, err
	}
	g, err := calls.NewGuest(ctx, rt, "console")
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return &session{sys: sys, rt: rt, calls: calls, guest: g}, nil
}

func (s *session) Close(ctx context.Context) error {
	err := s.guest.Shutdown(ctx)
	if err2 := s.rt.Close(ctx); err == nil {
		err = err2
	}
	return err
}

type consoleCommand struct {
	usage string
	run   func(s *session, ctx context.Context, args []string) (string, error)
}

var consoleCommands map[string]consoleCommand

func init() {
	consoleCommands = map[string]consoleCommand{
		"devices": {"devices", (*session).devices},
		"open":    {"open <path> [ro|wo|rw] [nonblock]", (*session).open},
		"close":   {"close <fd>", (*session).close},
		"read":    {"read <fd> <count>", (*session).read},
		"write":   {"write <fd> <text>", (*session).write},
		"seek":    {"seek <fd> <offset> [set|cur|end]", (*session).seek},
		"ioctl":   {"ioctl <fd> <cmd> [value]", (*session).ioctl},
		"compat":  {"compat <fd> <cmd> [value]", (*session).compat},
		"fsync":   {"fsync <fd> [data]", (*session).fsync},
		"help":    {"help", (*session).help},
	}
}

// exec runs one console line and returns its printable result.
func (s *session) exec(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	c, ok := consoleCommands[fields[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return c.run(s, ctx, fields[1:])
}

func (s *session) help(context.Context, []string) (string, error) {
	names := []string{"devices", "open", "close", "read", "write", "seek", "ioctl", "compat", "fsync"}
	lines := make([]string, 0, len(names))
	for _, n := range names {
		lines = append(lines, consoleCommands[n].usage)
	}
	return strings.Join(lines, "\n"), nil
}

func (s *session) devices(context.Context, []string) (string, error) {
	var b strings.Builder
	for i, d := range s.sys.host.Devices() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-16s %3d:%-3d %s", d.Name, d.Major, d.Minor, d.Table.Capabilities())
	}
	return b.String(), nil
}

func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func parseFD(s string) (int32, error) {
	fd, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad descriptor %q", s)
	}
	return int32(fd), nil
}

func (s *session) open(ctx context.Context, args []string) (string, error) {
	if err := needArgs(args, 1, consoleCommands["open"].usage); err != nil {
		return "", err
	}
	flags := file.O_RDWR
	for _, a := range args[1:] {
		switch a {
		case "ro":
			flags = flags&^3 | file.O_RDONLY
		case "wo":
			flags = flags&^3 | file.O_WRONLY
		case "rw":
			flags = flags&^3 | file.O_RDWR
		case "nonblock":
			flags |= file.O_NONBLOCK
		default:
			return "", fmt.Errorf("unknown open flag %q", a)
		}
	}
	fd, err := s.guest.Open(ctx, args[0], flags)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("fd %d", fd), nil
}

func (s *session) close(ctx context.Context, args []string) (string, error) {
	if err := needArgs(args, 1, consoleCommands["close"].usage); err != nil {
		return "", err
	}
	fd, err := parseFD(args[0])
	if err != nil {
		return "", err
	}
	return "ok", s.guest.Close(ctx, fd)
}

func (s *session) read(ctx context.Context, args []string) (string, error) {
	if err := needArgs(args, 2, consoleCommands["read"].usage); err != nil {
		return "", err
	}
	fd, err := parseFD(args[0])
	if err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return "", fmt.Errorf("bad count %q", args[1])
	}
	data, err := s.guest.Read(ctx, fd, uint32(n))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d bytes %q", len(data), data), nil
}

func (s *session) write(ctx context.Context, args []string) (string, error) {
	if err := needArgs(args, 2, consoleCommands["write"].usage); err != nil {
		return "", err
	}
	fd, err := parseFD(args[0])
	if err != nil {
		return "", err
	}
	n, err := s.guest.Write(ctx, fd, []byte(strings.Join(args[1:], " ")))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d bytes", n), nil
}

func (s *session) seek(ctx context.Context, args []string) (string, error) {
	if err := needArgs(args, 2, consoleCommands["seek"].usage); err != nil {
		return "", err
	}
	fd, err := parseFD(args[0])
	if err != nil {
		return "", err
	}
	off, err := strconv.ParseInt(args[1], 0, 64)
	if err != nil {
		return "", fmt.Errorf("bad offset %q", args[1])
	}
	whence := fileops.WhenceSet
	if len(args) > 2 {
		switch args[2] {
		case "set":
		case "cur":
			whence = fileops.WhenceCur
		case "end":
			whence = fileops.WhenceEnd
		default:
			return "", fmt.Errorf("unknown whence %q", args[2])
		}
	}
	pos, err := s.guest.Lseek(ctx, fd, off, whence)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("position %d", pos), nil
}

func (s *session) ioctl(ctx context.Context, args []string) (string, error) {
	return s.control(ctx, args, s.guest.Ioctl, consoleCommands["ioctl"].usage)
}

func (s *session) compat(ctx context.Context, args []string) (string, error) {
	return s.control(ctx, args, s.guest.CompatIoctl, consoleCommands["compat"].usage)
}

type ioctlCall func(ctx context.Context, fd int32, cmd uint32, arg uint64) (int64, error)

// control issues a device-control command. For commands that carry a buffer,
// value is stored little-endian at the start of the guest buffer and arg
// points there; for the others value is the argument itself.
func (s *session) control(ctx context.Context, args []string, call ioctlCall, usage string) (string, error) {
	if err := needArgs(args, 2, usage); err != nil {
		return "", err
	}
	fd, err := parseFD(args[0])
	if err != nil {
		return "", err
	}
	cmd, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return "", fmt.Errorf("bad command %q", args[1])
	}
	var value uint64
	if len(args) > 2 {
		if value, err = strconv.ParseUint(args[2], 0, 64); err != nil {
			return "", fmt.Errorf("bad value %q", args[2])
		}
	}

	dir := s.sys.host.TableOptions().Layout.Decode(uint32(cmd))
	arg := value
	mem := s.guest.Memory()
	switch dir.Kind {
	case ioctl.KindWrite, ioctl.KindReadWrite:
		buf := make([]byte, dir.Size)
		var v [8]byte
		binary.LittleEndian.PutUint64(v[:], value)
		copy(buf, v[:])
		if !mem.Write(hostcall.BufAddr, buf) {
			return "", fmt.Errorf("command buffer of %d bytes does not fit", dir.Size)
		}
		arg = hostcall.BufAddr
	case ioctl.KindRead:
		arg = hostcall.BufAddr
	}

	ret, err := call(ctx, fd, uint32(cmd), arg)
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("%s -> %d", dir, ret)
	if dir.Kind == ioctl.KindRead || dir.Kind == ioctl.KindReadWrite {
		data, ok := mem.Read(hostcall.BufAddr, dir.Size)
		if !ok {
			return out, nil
		}
		out += " " + formatPayload(data)
	}
	return out, nil
}

// formatPayload prints payloads up to 8 bytes as a little-endian integer and
// longer ones in hex.
func formatPayload(data []byte) string {
	if len(data) > 8 {
		return hex.EncodeToString(data)
	}
	var v [8]byte
	copy(v[:], data)
	return strconv.FormatUint(binary.LittleEndian.Uint64(v[:]), 10)
}

func (s *session) fsync(ctx context.Context, args []string) (string, error) {
	if err := needArgs(args, 1, consoleCommands["fsync"].usage); err != nil {
		return "", err
	}
	fd, err := parseFD(args[0])
	if err != nil {
		return "", err
	}
	datasync := len(args) > 1 && args[1] == "data"
	ret, err := s.guest.Fsync(ctx, fd, datasync)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ok %d", ret), nil
}
