package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	webview "github.com/webview/webview_go"

	"inatmap/pkg/config"
)

var configPath = flag.String("config", "configs/inatmap.yaml", "Path to the server config file")

func main() {
	flag.Parse()

	// Webview requires main thread
	runtime.LockOSThread()

	// Run from the executable directory so the server finds configs/ and data/
	exe, err := os.Executable()
	if err == nil {
		if err := os.Chdir(filepath.Dir(exe)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to change directory: %v\n", err)
			os.Exit(1)
		}
	}

	addr := config.DefaultConfig().Server.Address
	if cfg, err := config.Load(*configPath); err == nil {
		addr = cfg.Server.Address
	} else {
		slog.Warn("Falling back to the default server address", "error", err)
	}

	w := webview.New(true)
	defer w.Destroy()

	w.Init(`
		window.addEventListener('contextmenu', function(e) {
			e.preventDefault();
		}, true);
	`)
	w.SetTitle("My iNat Map")
	w.SetSize(1280, 800, webview.HintNone)

	logProxy := func(msg string) {
		w.Dispatch(func() {
			w.Eval("window.appendServerLog(" + escapeJS(msg) + ")")
		})
	}
	termProxy := func(name string) {
		w.Dispatch(func() {
			w.Eval("window.setServerName(" + escapeJS(name) + ")")
		})
	}
	appProxy := func(url string) {
		w.Dispatch(func() {
			w.Eval("window.openMap(" + escapeJS(url) + ")")
		})
	}

	mgr := NewManager(logProxy, termProxy, appProxy, addr, *configPath)
	defer mgr.Stop()

	// Serve the launcher page locally so the iframe keeps a same-origin-ish http context
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to listen: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()

	go func() {
		if err := http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(launcherPage))
		})); err != nil {
			slog.Debug("Launcher page server stopped", "error", err)
		}
	}()

	w.Navigate("http://" + ln.Addr().String())

	mgr.Start()
	w.Run()
}

func escapeJS(s string) string {
	b, _ := json.Marshal(s)
	// json.Marshal returns "string", surrounding quotes included.
	return string(b)
}
