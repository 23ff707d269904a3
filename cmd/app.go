package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/cliplib"
	"github.com/killallgit/vidchat/pkg/config"
	"github.com/killallgit/vidchat/pkg/logger"
	"github.com/killallgit/vidchat/pkg/render"
	"github.com/killallgit/vidchat/pkg/session"
	"github.com/killallgit/vidchat/pkg/stream"
	"github.com/killallgit/vidchat/pkg/transport"
)

const helpText = `Commands:
  /clear            start a new chat
  /related <query>  recall clips from earlier answers
  /help             show this help
  /quit             exit`

// App holds one chat session and the surfaces around it.
type App struct {
	session  *session.Session
	library  *cliplib.Library
	renderer *render.Renderer
	results  int
	log      *logger.Logger
}

// newSource builds the stream source selected by transport.kind.
func newSource(cfg *config.Config) (transport.Source, error) {
	switch cfg.Transport.Kind {
	case config.TransportText:
		return transport.NewTextSource(cfg.Proxy.URL, http.DefaultClient), nil
	case config.TransportAgent:
		return transport.NewAgentSource(cfg.Agent.URL, http.DefaultClient), nil
	case config.TransportLangChain:
		src, err := transport.NewOllamaSource(cfg.Ollama.URL, cfg.Ollama.Model, cfg.Ollama.Timeout)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}
}

// NewApp wires a session to src. The clip library is optional; when it
// cannot be created the chat still works without recall.
func NewApp(cfg *config.Config, src transport.Source) *App {
	log := logger.WithComponent("app")

	aggOpts := stream.DefaultOptions()
	if len(cfg.Agent.ReplyNodes) > 0 {
		aggOpts.ReplyNodes = cfg.Agent.ReplyNodes
	}

	app := &App{
		session: session.New(session.Options{
			Source:      src,
			Builder:     transport.NewRequestBuilder(cfg.Agent),
			IdleTimeout: cfg.Stream.IdleTimeout,
			Welcome:     cfg.Chat.WelcomeMessage,
			Aggregator:  aggOpts,
		}),
		renderer: render.New(100, render.WithHighlightJSON(cfg.Render.HighlightJSON)),
		results:  cfg.ClipLib.Results,
		log:      log,
	}

	if cfg.ClipLib.Enabled {
		lib, err := newLibrary(cfg)
		if err != nil {
			log.Warn("Clip recall disabled", "reason", err)
		} else {
			app.library = lib
			lib.Watch(app.session.Store())
		}
	}
	return app
}

func newLibrary(cfg *config.Config) (*cliplib.Library, error) {
	embed, err := cliplib.NewOllamaEmbedding(cfg.Ollama.URL, cfg.ClipLib.EmbeddingModel, cfg.Ollama.Timeout)
	if err != nil {
		return nil, err
	}
	return cliplib.New(cliplib.Options{
		Embedding:  embed,
		PersistDir: config.BuildSettingsPath("cliplib"),
	})
}

func (a *App) Close() error {
	a.session.Cancel()
	if a.library != nil {
		return a.library.Close()
	}
	return nil
}

// Ask streams the reply to one question into w.
func (a *App) Ask(ctx context.Context, question string, w io.Writer) error {
	store := a.session.Store()
	live := render.NewLiveWriter(w, a.renderer, store.State())
	unsubscribe := store.Subscribe(live.Update)
	defer unsubscribe()

	if err := a.session.Submit(ctx, question); err != nil {
		return err
	}
	live.Finish(store.State())
	return nil
}

// Repl reads questions and commands line by line until EOF or /quit.
func (a *App) Repl(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, a.renderer.Transcript(a.session.State()))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.command(ctx, line, out)
			if err != nil {
				fmt.Fprintln(out, a.renderer.Error(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if err := a.Ask(ctx, line, out); err != nil {
			fmt.Fprintln(out, a.renderer.Error(err.Error()))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func (a *App) command(ctx context.Context, line string, out io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	a.log.Debug("Running command", "name", name)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, helpText)
	case "/clear":
		a.session.ClearChat()
		fmt.Fprintln(out, a.renderer.Transcript(a.session.State()))
	case "/related":
		return false, a.related(ctx, arg, out)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}

func (a *App) related(ctx context.Context, query string, out io.Writer) error {
	if a.library == nil {
		return fmt.Errorf("clip recall is disabled")
	}
	if query == "" {
		// Default to the last question asked
		state := a.session.State()
		if idx := state.LastUserIndex(); idx >= 0 {
			query = state.Messages[idx].Question
		}
	}
	if query == "" {
		return fmt.Errorf("usage: /related <query>")
	}

	matches, err := a.library.Related(ctx, query, a.results)
	if err != nil {
		return fmt.Errorf("failed to recall clips: %w", err)
	}
	if len(matches) == 0 {
		fmt.Fprintln(out, "No clips recalled yet.")
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(out, "%s (%.2f)\n", m.Question, m.Similarity)
		fmt.Fprintln(out, a.renderer.ClipTable([]chat.ClipResult{m.Clip}))
	}
	return nil
}
