// Command bufctl is an interactive shell over a buffer manager and
// slotted pages, for poking at the kernel by hand.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	bufkernel "github.com/novakernel/bufkernel/internal"
	"github.com/novakernel/bufkernel/internal/buffer"
	"github.com/novakernel/bufkernel/internal/storage"
	"github.com/novakernel/bufkernel/internal/storage/common"
)

func historyPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".bufctl_history")
}

const prompt = "bufctl> "

// History is a small file-backed command history, loaded at startup and
// appended to as commands are entered.
type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History {
	return &History{path: path}
}

func (h *History) Load() error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			h.lines = append(h.lines, line)
		}
	}
	return sc.Err()
}

func (h *History) Append(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || h.path == "" {
		return nil
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, line); err != nil {
		return err
	}
	h.lines = append(h.lines, line)
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg := bufkernel.DefaultConfig()
	if *configPath != "" {
		loaded, err := bufkernel.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bufctl: load config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	dbPath := cfg.Storage.DBFile
	if cfg.Storage.DataDir != "" && cfg.Storage.DataDir != "." {
		dbPath = cfg.Storage.DataDir + string(os.PathSeparator) + cfg.Storage.DBFile
	}

	dm, err := storage.NewFileDiskManager(dbPath, cfg.Pool.PageSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bufctl: open disk manager:", err)
		os.Exit(1)
	}

	mgr := buffer.NewManager(dm, cfg.Pool.FrameCount, cfg.Pool.PageSize)

	hist := NewHistory(historyPath())
	if err := hist.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "bufctl: load history:", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bufctl: init readline:", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range hist.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Printf("bufkernel debug shell — %d frames, %d-byte pages, db=%s\n",
		cfg.Pool.FrameCount, cfg.Pool.PageSize, dbPath)
	fmt.Println("commands: new | pin <id> | unpin <id> | insert <id> <text> | get <id> <slot> | delete <id> <slot> | iter <id> | dump <id> | flush <id> | flushall | free <id> | quit")

	pinned := map[common.PageID]*storage.SlottedPage{}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			break
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		cmd := fields[0]
		args := fields[1:]

		if cmd == "quit" || cmd == "exit" {
			break
		}

		_ = hist.Append(line)
		if err := dispatch(mgr, pinned, cmd, args); err != nil {
			fmt.Println("error:", err)
		}
	}

	if err := mgr.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "bufctl: close:", err)
		os.Exit(1)
	}
}

func dispatch(mgr *buffer.Manager, pinned map[common.PageID]*storage.SlottedPage, cmd string, args []string) error {
	switch cmd {
	case "new":
		id, page, err := mgr.NewPage(1)
		if err != nil {
			return err
		}
		pinned[id] = page
		fmt.Println("allocated and pinned page", id)
		return nil

	case "pin":
		id, err := parsePageID(args)
		if err != nil {
			return err
		}
		page, err := mgr.PinPage(id, false)
		if err != nil {
			return err
		}
		pinned[id] = page
		fmt.Println("pinned page", id)
		return nil

	case "unpin":
		id, err := parsePageID(args)
		if err != nil {
			return err
		}
		if err := mgr.UnpinPage(id, true); err != nil {
			return err
		}
		delete(pinned, id)
		fmt.Println("unpinned page", id)
		return nil

	case "insert":
		if len(args) < 2 {
			return fmt.Errorf("usage: insert <id> <text>")
		}
		id, err := parsePageIDArg(args[0])
		if err != nil {
			return err
		}
		page, ok := pinned[id]
		if !ok {
			return fmt.Errorf("page %d is not pinned in this session", id)
		}
		rid, err := page.InsertRecord([]byte(strings.Join(args[1:], " ")))
		if err != nil {
			return err
		}
		fmt.Printf("inserted at rid (%d,%d)\n", rid.PageNo, rid.SlotNo)
		return nil

	case "get":
		id, slot, err := parsePageIDAndSlot(args)
		if err != nil {
			return err
		}
		page, ok := pinned[id]
		if !ok {
			return fmt.Errorf("page %d is not pinned in this session", id)
		}
		rec, err := page.GetRecord(common.RID{PageNo: id, SlotNo: slot})
		if err != nil {
			return err
		}
		fmt.Printf("(%d,%d) = %q\n", id, slot, rec)
		return nil

	case "delete":
		id, slot, err := parsePageIDAndSlot(args)
		if err != nil {
			return err
		}
		page, ok := pinned[id]
		if !ok {
			return fmt.Errorf("page %d is not pinned in this session", id)
		}
		return page.DeleteRecord(common.RID{PageNo: id, SlotNo: slot})

	case "iter":
		id, err := parsePageID(args)
		if err != nil {
			return err
		}
		page, ok := pinned[id]
		if !ok {
			return fmt.Errorf("page %d is not pinned in this session", id)
		}
		rid, err := page.FirstRecord()
		for err == nil {
			rec, getErr := page.GetRecord(rid)
			if getErr != nil {
				return getErr
			}
			fmt.Printf("(%d,%d) = %q\n", rid.PageNo, rid.SlotNo, rec)
			rid, err = page.NextRecord(rid)
		}
		if errors.Is(err, common.ErrDone) {
			return nil
		}
		return err

	case "dump":
		id, err := parsePageID(args)
		if err != nil {
			return err
		}
		page, ok := pinned[id]
		if !ok {
			return fmt.Errorf("page %d is not pinned in this session", id)
		}
		fmt.Println(page.DumpString())
		return nil

	case "flush":
		id, err := parsePageID(args)
		if err != nil {
			return err
		}
		if err := mgr.FlushPage(id); err != nil {
			return err
		}
		delete(pinned, id)
		return nil

	case "flushall":
		err := mgr.FlushAllPages()
		for id := range pinned {
			delete(pinned, id)
		}
		return err

	case "free":
		id, err := parsePageID(args)
		if err != nil {
			return err
		}
		if err := mgr.FreePage(id); err != nil {
			return err
		}
		delete(pinned, id)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parsePageID(args []string) (common.PageID, error) {
	if len(args) < 1 {
		return common.InvalidPageID, fmt.Errorf("usage: <cmd> <id>")
	}
	return parsePageIDArg(args[0])
}

func parsePageIDArg(s string) (common.PageID, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return common.InvalidPageID, fmt.Errorf("invalid page id %q: %w", s, err)
	}
	return common.PageID(n), nil
}

func parsePageIDAndSlot(args []string) (common.PageID, int32, error) {
	if len(args) < 2 {
		return common.InvalidPageID, 0, fmt.Errorf("usage: <cmd> <id> <slot>")
	}
	id, err := parsePageIDArg(args[0])
	if err != nil {
		return common.InvalidPageID, 0, err
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return common.InvalidPageID, 0, fmt.Errorf("invalid slot %q: %w", args[1], err)
	}
	return id, int32(slot), nil
}
