package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/danmuck/geckoctl/internal/gecko"
	"github.com/rs/zerolog/log"
)

var errUsage = errors.New("usage")

// run connects one Session, executes the command in args and disconnects.
func run(ctx context.Context, cfg cliConfig, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	if len(args)-1 < cmd.minArgs {
		return fmt.Errorf("%w: %s needs %d argument(s)", errUsage, args[0], cmd.minArgs)
	}

	s := gecko.New(cfg.Session, gecko.WithLogger(log.Logger))
	if err := s.ConnectWithRetry(ctx, cfg.ConnectAttempts); err != nil {
		return err
	}
	defer s.Disconnect()

	return cmd.fn(ctx, &invocation{cfg: cfg, session: s, args: args[1:], out: out})
}

type invocation struct {
	cfg     cliConfig
	session *gecko.Session
	args    []string
	out     io.Writer
}

type command struct {
	minArgs int
	fn      func(context.Context, *invocation) error
}

var commands = map[string]command{
	"status":         {0, runStatus},
	"version":        {0, runVersion},
	"info":           {0, runInfo},
	"peek":           {1, runPeek},
	"poke":           {2, runPoke},
	"dump":           {3, runDump},
	"upload":         {2, runUpload},
	"cheat":          {1, runCheat},
	"regions":        {0, runRegions},
	"log":            {0, runLog},
	"patch-wireless": {0, runPatchWireless},
	"dump-regions":   {1, runDumpRegions},
	"serve":          {0, runServe},
}

func parseUint32(raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return uint32(v), nil
}

func runStatus(ctx context.Context, inv *invocation) error {
	st, err := inv.session.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(inv.out, st)
	return nil
}

func runVersion(ctx context.Context, inv *invocation) error {
	s := inv.session
	version, err := s.VersionRequest(ctx)
	if err != nil {
		return err
	}
	osVersion, err := s.OSVersionRequest(ctx)
	if err != nil {
		return err
	}
	kernVersion, err := s.KernelVersionRequest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(inv.out, "agent=0x%X os=0x%X kernel=0x%X\n", version, osVersion, kernVersion)
	return nil
}

func runInfo(ctx context.Context, inv *invocation) error {
	s := inv.session
	titleType, err := s.TitleTypeRequest(ctx)
	if err != nil {
		return err
	}
	titleID, err := s.TitleIDRequest(ctx)
	if err != nil {
		return err
	}
	pid, err := s.GamePIDRequest(ctx)
	if err != nil {
		return err
	}
	name, err := s.GameNameRequest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(inv.out, "title_type=0x%08X title_id=0x%08X pid=0x%08X name=%q\n", titleType, titleID, pid, name)
	return nil
}

func runPeek(ctx context.Context, inv *invocation) error {
	addr, err := parseUint32(inv.args[0])
	if err != nil {
		return err
	}
	v, err := inv.session.Peek(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(inv.out, "0x%08X: 0x%08X\n", addr&^3, v)
	return nil
}

func runPoke(ctx context.Context, inv *invocation) error {
	addr, err := parseUint32(inv.args[0])
	if err != nil {
		return err
	}
	v, err := parseUint32(inv.args[1])
	if err != nil {
		return err
	}
	width := "32"
	if len(inv.args) > 2 {
		width = inv.args[2]
	}
	switch width {
	case "8":
		if v > 0xFF {
			return fmt.Errorf("value 0x%X does not fit 8 bits", v)
		}
		return inv.session.Write8(ctx, addr, uint8(v))
	case "16":
		if v > 0xFFFF {
			return fmt.Errorf("value 0x%X does not fit 16 bits", v)
		}
		return inv.session.Write16(ctx, addr, uint16(v))
	case "32":
		return inv.session.Write32(ctx, addr, v)
	default:
		return fmt.Errorf("%w: width must be 8, 16 or 32", errUsage)
	}
}

func runDump(ctx context.Context, inv *invocation) error {
	start, err := parseUint32(inv.args[0])
	if err != nil {
		return err
	}
	end, err := parseUint32(inv.args[1])
	if err != nil {
		return err
	}
	f, err := os.Create(inv.args[2])
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := inv.session.Dump(ctx, start, end, f, logProgress("dump"))
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	note := ""
	if res.Cancelled {
		note = " (cancelled)"
	}
	fmt.Fprintf(inv.out, "dumped %d bytes in %d chunks to %s%s\n", res.Transferred, res.Chunks, inv.args[2], note)
	return nil
}

func runUpload(ctx context.Context, inv *invocation) error {
	start, err := parseUint32(inv.args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(inv.args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if uint64(start)+uint64(info.Size()) > 1<<32 {
		return fmt.Errorf("%s does not fit above 0x%08X", inv.args[1], start)
	}
	end := start + uint32(info.Size())
	if err := inv.session.Upload(ctx, start, end, f, logProgress("upload")); err != nil {
		return err
	}
	fmt.Fprintf(inv.out, "uploaded %d bytes to 0x%08X\n", end-start, start)
	return nil
}

func runCheat(ctx context.Context, inv *invocation) error {
	s := inv.session
	switch inv.args[0] {
	case "add":
		if len(inv.args) < 2 {
			return fmt.Errorf("%w: cheat add <file>", errUsage)
		}
		text, err := os.ReadFile(inv.args[1])
		if err != nil {
			return err
		}
		id, err := s.SendCheat(ctx, string(text))
		if err != nil {
			return err
		}
		fmt.Fprintln(inv.out, id)
		return nil
	case "list":
		return s.ListCheats(ctx)
	case "enable", "disable", "remove":
		if len(inv.args) < 2 {
			return fmt.Errorf("%w: cheat %s <id>", errUsage, inv.args[0])
		}
		id, err := strconv.ParseInt(inv.args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("parse id %q: %w", inv.args[1], err)
		}
		switch inv.args[0] {
		case "enable":
			return s.EnableCheat(ctx, int32(id))
		case "disable":
			return s.DisableCheat(ctx, int32(id))
		default:
			return s.RemoveCheat(ctx, int32(id))
		}
	default:
		return fmt.Errorf("%w: unknown cheat action %q", errUsage, inv.args[0])
	}
}

func runRegions(ctx context.Context, inv *invocation) error {
	regions, err := inv.session.MemoryRegionRequest(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(inv.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tSIZE\tTYPE")
	for _, r := range regions {
		fmt.Fprintf(tw, "0x%08X\t0x%08X\t0x%X\t%d\n", r.Start, r.End(), r.Size, r.Type)
	}
	return tw.Flush()
}

func runLog(ctx context.Context, inv *invocation) error {
	text, err := inv.session.LogRequest(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(inv.out, text)
	return err
}

func runPatchWireless(ctx context.Context, inv *invocation) error {
	return inv.session.PatchWireless(ctx)
}

func logProgress(op string) gecko.ProgressFunc {
	return func(p gecko.Progress) {
		log.Trace().
			Str("op", op).
			Uint32("chunk", p.Chunk).
			Uint32("chunks", p.Chunks).
			Uint32("transferred", p.Transferred).
			Uint32("length", p.Length).
			Msg("geckoctl progress")
	}
}
