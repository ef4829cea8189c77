// Package main is the interactive terminal client for the Ziggy chat
// backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ziggy-ai/chat-client/internal/api"
	"github.com/ziggy-ai/chat-client/internal/config"
	"github.com/ziggy-ai/chat-client/internal/conversation"
	"github.com/ziggy-ai/chat-client/internal/credentials"
	"github.com/ziggy-ai/chat-client/internal/model"
	"github.com/ziggy-ai/chat-client/internal/session"
	"github.com/ziggy-ai/chat-client/pkg/logger"
	"github.com/ziggy-ai/chat-client/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ziggy-cli", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	creds := credentials.NewFileStore(cfg.CredentialsFile)
	client := api.NewClient(cfg.BackendURL, creds, log)
	sessions := session.NewStore(client, log)
	state := conversation.NewState(client, sessions, log,
		conversation.WithRevealDelay(cfg.RevealDelay))

	a := &app{
		cfg:      cfg,
		log:      log,
		creds:    creds,
		client:   client,
		sessions: sessions,
		state:    state,
		stdin:    bufio.NewScanner(os.Stdin),
		mode:     model.Mode(cfg.DefaultMode),
	}
	if !a.mode.Valid() {
		a.mode = model.ModeNone
	}

	if err := a.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	log      *logger.Logger
	creds    credentials.Store
	client   *api.Client
	sessions *session.Store
	state    *conversation.State
	stdin    *bufio.Scanner
	mode     model.Mode
	userName string
}

func (a *app) run(ctx context.Context) error {
	if err := a.ensureLogin(ctx); err != nil {
		return err
	}

	if err := a.sessions.Refresh(ctx); err != nil {
		if !errors.Is(err, api.ErrUnauthenticated) {
			return err
		}
		if err := a.login(ctx); err != nil {
			return err
		}
		if err := a.sessions.Refresh(ctx); err != nil {
			return err
		}
	}

	// Ctrl-C cancels an in-flight reveal; when idle it exits.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigs {
			if a.state.Typing() {
				a.state.CancelReveal()
				continue
			}
			fmt.Println()
			os.Exit(0)
		}
	}()

	fmt.Printf("Hello, %s! I'm Ziggy. Type /help for commands.\n", firstWord(a.userName))
	a.printSessions()

	for {
		fmt.Print("> ")
		if !a.stdin.Scan() {
			return a.stdin.Err()
		}
		line := strings.TrimSpace(a.stdin.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.command(ctx, line); quit {
				return nil
			}
			continue
		}
		a.send(ctx, line)
	}
}

func (a *app) command(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Println(`/new            start a new conversation
/sessions       list known sessions
/open <n>       open session number n from the list
/rename <t>     rename the open session
/delete         delete the open session
/mode <m>       set assistant mode (search, study, image, off)
/logout         clear credentials and exit
/quit           exit`)
	case "/new":
		a.state.StartNew()
		fmt.Println("Started a new conversation.")
	case "/sessions":
		a.printSessions()
	case "/open":
		a.open(ctx, arg)
	case "/rename":
		if err := a.state.Rename(ctx, arg); err != nil {
			fmt.Printf("rename failed: %v\n", err)
		}
	case "/delete":
		if err := a.state.Delete(ctx); err != nil {
			fmt.Printf("delete failed: %v\n", err)
		} else {
			fmt.Println("Session deleted.")
		}
	case "/mode":
		a.setMode(arg)
	case "/logout":
		if err := a.creds.Clear(); err != nil {
			fmt.Printf("logout failed: %v\n", err)
		}
		return true
	case "/quit", "/exit":
		return true
	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	return false
}

func (a *app) send(ctx context.Context, text string) {
	askCtx, cancel := context.WithTimeout(ctx, a.cfg.AskTimeout)
	defer cancel()

	var lastPrefix string
	result, err := a.state.Send(askCtx, text, conversation.SendOptions{
		UserName: a.userName,
		Mode:     a.mode,
		OnProgress: func(prefix string) {
			fmt.Print(strings.TrimPrefix(prefix, lastPrefix))
			lastPrefix = prefix
		},
	})
	if err != nil {
		if errors.Is(err, conversation.ErrAborted) {
			fmt.Println("(request timed out)")
			return
		}
		fmt.Printf("send failed: %v\n", err)
		return
	}

	if result.Fallback {
		fmt.Println(result.AssistantMessage.Content)
		return
	}

	fmt.Println()
	if result.Cancelled {
		fmt.Println("(stopped)")
	}
	if _, url := model.SplitImageURL(result.AssistantMessage.Content); url != "" {
		fmt.Printf("[image] %s\n", url)
	}
	if result.SessionCreateFailed {
		fmt.Println("(offline: this conversation is not being saved)")
	}
}

func (a *app) open(ctx context.Context, arg string) {
	n, err := strconv.Atoi(arg)
	list := a.sessions.Sessions()
	if err != nil || n < 1 || n > len(list) {
		fmt.Println("usage: /open <n> (see /sessions)")
		return
	}
	sum := list[n-1]
	if err := a.state.LoadExisting(ctx, sum); err != nil {
		fmt.Printf("failed to open session: %v\n", err)
		return
	}
	fmt.Printf("Opened %q (%d messages)\n", sum.Title, len(a.state.Messages()))
	for _, msg := range a.state.Messages() {
		prefix := "you"
		if msg.Role == model.RoleAssistant {
			prefix = "ziggy"
		}
		fmt.Printf("%s: %s\n", prefix, msg.Content)
	}
}

func (a *app) setMode(arg string) {
	switch arg {
	case "off", "none", "":
		a.mode = model.ModeNone
		fmt.Println("Mode cleared.")
		return
	}
	m := model.Mode(arg)
	if !m.Valid() {
		fmt.Println("modes: search, study, image, off")
		return
	}
	a.mode = m
	fmt.Printf("Mode set to %s.\n", m)
}

func (a *app) printSessions() {
	list := a.sessions.Sessions()
	if len(list) == 0 {
		fmt.Println("No previous chats.")
		return
	}
	for i, sum := range list {
		fmt.Printf("%2d. %s", i+1, sum.Title)
		if sum.LastMessagePreview != "" {
			fmt.Printf("  - %s", sum.LastMessagePreview)
		}
		fmt.Println()
	}
}

func (a *app) ensureLogin(ctx context.Context) error {
	c, err := a.creds.Get()
	if err == nil && !credentials.TokenExpired(c.AccessToken, time.Now()) {
		a.userName = c.UserName
		return nil
	}
	return a.login(ctx)
}

func (a *app) login(ctx context.Context) error {
	fmt.Print("email: ")
	if !a.stdin.Scan() {
		return errors.New("no input")
	}
	email := strings.TrimSpace(a.stdin.Text())

	fmt.Print("password: ")
	if !a.stdin.Scan() {
		return errors.New("no input")
	}
	password := strings.TrimSpace(a.stdin.Text())

	resp, err := a.client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := a.creds.Set(credentials.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserName:     resp.UserName,
	}); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	a.userName = resp.UserName
	return nil
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	if s == "" {
		return "Explorer"
	}
	return s
}
