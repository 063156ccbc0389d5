package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/orchestrator"
	"github.com/whoknows-ai/whoknows-go/internal/reveal"
	"github.com/whoknows-ai/whoknows-go/internal/session"
	"github.com/whoknows-ai/whoknows-go/internal/settings"
)

var (
	youLabel  = color.New(color.FgGreen, color.Bold).SprintFunc()
	botLabel  = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimText   = color.New(color.Faint).SprintFunc()
	errorText = color.New(color.FgRed).SprintFunc()
	boldText  = color.New(color.Bold).SprintFunc()
)

// shell is the interactive chat loop. One question at a time: it waits for
// the resolution and the typewriter before prompting again.
type shell struct {
	store *session.Store
	prefs *settings.Store // may be nil
	orch  *orchestrator.Orchestrator
	rev   *reveal.Engine
	in    *bufio.Scanner
	out   io.Writer

	typed    int // bytes of the current reveal already printed
	commands map[string]*shellCommand
	order    []string
	quit     bool
}

type shellCommand struct {
	name  string
	usage string
	short string
	run   func(args []string) error
}

func newShell(store *session.Store, prefs *settings.Store, in io.Reader, out io.Writer) *shell {
	sh := &shell{
		store:    store,
		prefs:    prefs,
		in:       bufio.NewScanner(in),
		out:      out,
		commands: map[string]*shellCommand{},
	}
	sh.register("new", "/new", "Start a fresh conversation", sh.cmdNew)
	sh.register("sessions", "/sessions", "List saved conversations", sh.cmdSessions)
	sh.register("open", "/open <n>", "Reopen a conversation from the list", sh.cmdOpen)
	sh.register("delete", "/delete <n>", "Delete a conversation from the list", sh.cmdDelete)
	sh.register("theme", "/theme [light|dark|system]", "Show or set the color theme", sh.cmdTheme)
	sh.register("sidebar", "/sidebar", "Toggle previews in the session list", sh.cmdSidebar)
	sh.register("help", "/help", "Show this help", sh.cmdHelp)
	sh.register("quit", "/quit", "Leave the chat", sh.cmdQuit)
	return sh
}

func (sh *shell) register(name, usage, short string, run func([]string) error) {
	sh.commands[name] = &shellCommand{name: name, usage: usage, short: short, run: run}
	sh.order = append(sh.order, name)
}

func (sh *shell) attach(orch *orchestrator.Orchestrator, rev *reveal.Engine) {
	sh.orch = orch
	sh.rev = rev
}

func (sh *shell) run() error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Fprintln(sh.out, "\nbye")
		os.Exit(0)
	}()

	if sh.prefs != nil {
		sh.applyTheme(sh.prefs.Load().ThemeMode)
	}
	sh.banner()

	for !sh.quit {
		fmt.Fprint(sh.out, youLabel("You: "))
		if !sh.in.Scan() {
			break
		}
		line := strings.TrimSpace(sh.in.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "/"):
			sh.dispatch(line)
		case strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit"):
			sh.quit = true
		default:
			sh.ask(line)
		}
	}
	return sh.in.Err()
}

func (sh *shell) banner() {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(sh.out, line)
	fmt.Fprintln(sh.out, boldText("WhoKnows? Enterprise Knowledge Chat"))
	fmt.Fprintln(sh.out, "Ask about teams, architecture or processes. /help lists commands.")
	fmt.Fprintln(sh.out, line)
}

func (sh *shell) dispatch(line string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		sh.printError("empty command, /help lists the available ones")
		return
	}
	cmd, ok := sh.commands[strings.ToLower(fields[0])]
	if !ok {
		sh.printError(fmt.Sprintf("unknown command /%s, /help lists the available ones", fields[0]))
		return
	}
	if err := cmd.run(fields[1:]); err != nil {
		sh.printError(err.Error())
	}
}

// ask sends the query and blocks until both the resolution and the typewriter
// are done, then prints the answer's footer.
func (sh *shell) ask(query string) {
	sh.typed = 0
	fmt.Fprint(sh.out, botLabel("WhoKnows: "))
	if err := sh.orch.Send(context.Background(), query); err != nil {
		fmt.Fprintln(sh.out, dimText("("+err.Error()+")"))
		return
	}
	sh.orch.Wait()
	sh.rev.Wait()

	cur, ok := sh.store.Current()
	var last chat.Message
	if ok && len(cur.Messages) > 0 {
		last = cur.Messages[len(cur.Messages)-1]
	}

	if banner := sh.store.Err(); banner != "" {
		// Failures skip the reveal; the fallback text prints in one piece.
		fmt.Fprintln(sh.out, last.Content)
		fmt.Fprintln(sh.out, errorText("! "+banner))
		fmt.Fprintln(sh.out)
		return
	}

	fmt.Fprintln(sh.out)
	sh.printFooter(last)
	fmt.Fprintln(sh.out)
}

// typewrite is the reveal sink. It prints only the suffix each new prefix
// adds, so the answer types itself out in place. A shrinking prefix means the
// reveal restarted against replaced text.
func (sh *shell) typewrite(_ string, prefix string) {
	if len(prefix) < sh.typed {
		fmt.Fprintln(sh.out)
		sh.typed = 0
	}
	fmt.Fprint(sh.out, prefix[sh.typed:])
	sh.typed = len(prefix)
}

func (sh *shell) printFooter(m chat.Message) {
	if len(m.Sources) > 0 {
		fmt.Fprintln(sh.out, dimText("sources:"))
		for _, src := range m.Sources {
			line := "  - " + src.Title
			if src.Locator != "" {
				line += " (" + src.Locator + ")"
			}
			fmt.Fprintln(sh.out, dimText(line))
		}
	}
	if m.Confidence != nil {
		if m.Confidence.Score > 0 {
			fmt.Fprintln(sh.out, dimText(fmt.Sprintf("confidence: %s (%.2f)", m.Confidence.Level, m.Confidence.Score)))
		} else {
			fmt.Fprintln(sh.out, dimText(fmt.Sprintf("confidence: %s", m.Confidence.Level)))
		}
	}
}

func (sh *shell) printError(text string) {
	fmt.Fprintln(sh.out, errorText("! "+text))
}

// applyTheme swaps the palette. Terminals do not report their background, so
// the stored preference decides which variant is readable.
func (sh *shell) applyTheme(mode settings.ThemeMode) {
	if mode == settings.ThemeLight {
		botLabel = color.New(color.FgBlue, color.Bold).SprintFunc()
		dimText = color.New(color.FgHiBlack).SprintFunc()
		return
	}
	botLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimText = color.New(color.Faint).SprintFunc()
}

func (sh *shell) cmdNew([]string) error {
	sh.rev.Cancel()
	sh.store.StartNewSession()
	fmt.Fprintln(sh.out, dimText("started a new conversation"))
	return nil
}

func (sh *shell) cmdSessions([]string) error {
	hist := sh.store.History()
	if len(hist) == 0 {
		fmt.Fprintln(sh.out, dimText("no saved conversations yet"))
		return nil
	}
	compact := false
	if sh.prefs != nil {
		compact = sh.prefs.Load().SidebarCollapsed
	}
	currentID := sh.store.CurrentID()
	for i, s := range hist {
		marker := "  "
		if s.ID == currentID {
			marker = boldText("* ")
		}
		meta := fmt.Sprintf("(%d messages, %s)", len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(sh.out, "%s%2d. %s  %s\n", marker, i+1, s.Title, dimText(meta))
		if !compact && s.Preview != "" {
			fmt.Fprintf(sh.out, "      %s\n", dimText(s.Preview))
		}
	}
	return nil
}

func (sh *shell) cmdOpen(args []string) error {
	target, err := sh.sessionAt(args)
	if err != nil {
		return err
	}
	// A reveal must never outlive a session switch.
	sh.rev.Cancel()
	sh.store.LoadSession(target.ID)
	sh.replay()
	return nil
}

func (sh *shell) cmdDelete(args []string) error {
	target, err := sh.sessionAt(args)
	if err != nil {
		return err
	}
	if target.ID == sh.store.CurrentID() {
		sh.rev.Cancel()
	}
	sh.store.DeleteSession(target.ID)
	fmt.Fprintln(sh.out, dimText(fmt.Sprintf("deleted %q", target.Title)))
	return nil
}

// sessionAt resolves a 1-based index from /sessions into a session snapshot.
func (sh *shell) sessionAt(args []string) (chat.Session, error) {
	if len(args) != 1 {
		return chat.Session{}, errors.New("give the conversation number shown by /sessions")
	}
	hist := sh.store.History()
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(hist) {
		return chat.Session{}, fmt.Errorf("no conversation numbered %q, /sessions lists them", args[0])
	}
	return hist[n-1], nil
}

// replay prints a reopened conversation in full. Historical messages are
// never revealed incrementally.
func (sh *shell) replay() {
	cur, ok := sh.store.Current()
	if !ok {
		return
	}
	fmt.Fprintln(sh.out, boldText(cur.Title))
	for _, m := range cur.Messages {
		label := botLabel("WhoKnows: ")
		if m.Role == chat.RoleUser {
			label = youLabel("You: ")
		}
		content := m.Content
		if m.Pending {
			content = dimText("(no answer arrived)")
		}
		fmt.Fprintf(sh.out, "%s%s\n", label, content)
	}
}

func (sh *shell) cmdTheme(args []string) error {
	if sh.prefs == nil {
		return errors.New("settings storage is unavailable")
	}
	current := sh.prefs.Load()
	if len(args) == 0 {
		fmt.Fprintf(sh.out, "theme: %s\n", current.ThemeMode)
		return nil
	}
	mode, err := settings.ParseThemeMode(args[0])
	if err != nil {
		return err
	}
	current.ThemeMode = mode
	if err := sh.prefs.Save(current); err != nil {
		return err
	}
	sh.applyTheme(mode)
	fmt.Fprintf(sh.out, "theme set to %s\n", mode)
	return nil
}

func (sh *shell) cmdSidebar([]string) error {
	if sh.prefs == nil {
		return errors.New("settings storage is unavailable")
	}
	current := sh.prefs.Load()
	current.SidebarCollapsed = !current.SidebarCollapsed
	if err := sh.prefs.Save(current); err != nil {
		return err
	}
	if current.SidebarCollapsed {
		fmt.Fprintln(sh.out, dimText("session list is now compact"))
	} else {
		fmt.Fprintln(sh.out, dimText("session list shows previews again"))
	}
	return nil
}

func (sh *shell) cmdHelp([]string) error {
	for _, name := range sh.order {
		c := sh.commands[name]
		fmt.Fprintf(sh.out, "  %-28s %s\n", c.usage, c.short)
	}
	return nil
}

func (sh *shell) cmdQuit([]string) error {
	sh.quit = true
	return nil
}
