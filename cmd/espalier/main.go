// Command espalier is a terminal tree browser built on the espalier
// engine: it mirrors a directory (or a SQLite node table) into an
// asynchronous tree model and keeps the view patched from file and
// clipboard change events. The engine does the synchronization; this
// binary is only a consumer.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/vanderheijden86/espalier/pkg/config"
	"github.com/vanderheijden86/espalier/pkg/dispatch"
	"github.com/vanderheijden86/espalier/pkg/model"
	"github.com/vanderheijden86/espalier/pkg/structure"
	"github.com/vanderheijden86/espalier/pkg/treemodel"
	"github.com/vanderheijden86/espalier/pkg/version"
	"github.com/vanderheijden86/espalier/pkg/watcher"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: XDG config dir)")
	dbPath := flag.String("db", "", "Browse a SQLite node table instead of a directory")
	clip := flag.Bool("clipboard", false, "Refresh nodes for clipboard content changes")
	showVersion := flag.Bool("version", false, "Show version")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *showVersion {
		fmt.Println("espalier", version.Version)
		return
	}

	if *help {
		fmt.Println("Usage: espalier [options] [dir]")
		fmt.Println("\nAn asynchronous tree browser. Browses the given directory")
		fmt.Println("(default: current directory) or a SQLite node table.")
		flag.PrintDefaults()
		return
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "espalier requires a terminal")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	provider, cleanup, err := buildProvider(*dbPath, flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	opts := []treemodel.Option{
		treemodel.WithWorkers(cfg.Engine.Workers),
		treemodel.WithComparator(byNameDirsFirst),
	}
	if cfg.Engine.EagerRecursion {
		opts = append(opts, treemodel.WithEagerRecursion())
	}
	if cfg.Engine.UpdateBuffer > 0 {
		opts = append(opts, treemodel.WithUpdateBuffer(cfg.Engine.UpdateBuffer))
	}
	engine := treemodel.NewStructureModel(provider, opts...)
	if err := engine.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
		os.Exit(1)
	}
	async := treemodel.NewAsyncModel(engine)
	dispatcher := dispatch.New(engine, async)

	var watch *watcher.Watcher
	if *dbPath == "" {
		watch = watcher.New(
			watcher.WithDebounceDuration(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
			watcher.WithForcePoll(cfg.Watch.ForcePolling),
		)
		_ = watch.Add(string(engine.Root()))
		if _, err := dispatcher.Attach(dispatch.NewFileSource(watch)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file watching disabled: %v\n", err)
			watch = nil
		}
	}
	if *clip || cfg.Watch.Clipboard {
		if _, err := dispatcher.Attach(&dispatch.ClipboardSource{}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: clipboard source disabled: %v\n", err)
		}
	}

	stateDir, err := cfg.ResolveStateDir()
	if err != nil {
		stateDir = ""
	}

	browser := newBrowser(async, dispatcher, watch, stateDir)
	p := tea.NewProgram(browser, tea.WithAltScreen())

	// Forward engine deltas to the UI loop as messages.
	subscription := browser.subscribe(p)
	defer subscription.Close()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dispatcher.Close()
	engine.Stop()
	<-async.Done()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func buildProvider(dbPath, dir string) (structure.Provider, func(), error) {
	if dbPath != "" {
		p, err := structure.NewSQLiteProvider(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	}
	if dir == "" {
		dir = "."
	}
	p, err := structure.NewFSProvider(dir)
	if err != nil {
		return nil, nil, err
	}
	return p, func() {}, nil
}

// byNameDirsFirst orders directories before files, then by name,
// case-insensitively.
func byNameDirsFirst(a, b model.Payload) int {
	if a.Leaf != b.Leaf {
		if b.Leaf {
			return -1
		}
		return 1
	}
	return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}
