package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/antibyte/retrobasic/pkg/auth"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/store"
	"github.com/antibyte/retrobasic/pkg/terminal"
	tlsmanager "github.com/antibyte/retrobasic/pkg/tls"
)

func main() {
	configPath := flag.String("config", "settings.cfg", "configuration file")
	flag.Parse()

	if err := configuration.Initialize(*configPath); err != nil {
		fmt.Printf("Error initializing configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.ConfigInfo("Server starting - configuration loaded from %s", *configPath)

	dbPath := configuration.GetString("Database", "path", "data/retrobasic.db")
	db, err := store.Open(dbPath)
	if err != nil {
		logger.Fatal(logger.AreaStore, "Database initialization failed: %v", err)
	}
	defer db.Close()
	logger.Info(logger.AreaStore, "Program library opened at %s", dbPath)

	tlsManager, err := tlsmanager.NewManager(tlsmanager.ConfigFromSettings())
	if err != nil {
		logger.Fatal(logger.AreaSecurity, "TLS manager initialization failed: %v", err)
	}

	handler := terminal.NewHandler(db)
	mux := newMux(auth.NewHandlers(db), handler, configuration.GetString("Server", "static_dir", "web"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers := startServers(mux, tlsManager)
	<-ctx.Done()
	logger.Info(logger.AreaGeneral, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(logger.AreaGeneral, "Shutdown of %s failed: %v", srv.Addr, err)
		}
	}
	// Hijacked WebSocket connections are not covered by Shutdown.
	handler.Shutdown()
}

func newMux(authHandlers *auth.Handlers, handler *terminal.Handler, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/session", authHandlers.HandleCreateSession)
	mux.HandleFunc("/api/auth/register", authHandlers.HandleRegister)
	mux.HandleFunc("/api/auth/login", authHandlers.HandleLogin)
	mux.HandleFunc("/api/auth/validate", authHandlers.HandleTokenValidation)
	mux.HandleFunc("/ws", handler.HandleWebSocket)
	mux.Handle("/", staticHandler(staticDir))
	return mux
}

// staticHandler serves the frontend. Requests for missing files get
// index.html so client side routes work.
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); err != nil {
			index := filepath.Join(dir, "index.html")
			if _, err := os.Stat(index); err != nil {
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// startServers starts HTTP, HTTPS or both and returns them for shutdown.
func startServers(handler http.Handler, tlsManager *tlsmanager.Manager) []*http.Server {
	if !tlsManager.Enabled() {
		srv := &http.Server{Addr: ":" + tlsManager.HTTPPort(), Handler: handler}
		go serve(srv, false)
		return []*http.Server{srv}
	}

	httpsServer := &http.Server{
		Addr:      ":" + tlsManager.HTTPSPort(),
		Handler:   handler,
		TLSConfig: tlsManager.TLSConfig(),
	}
	go serve(httpsServer, true)
	servers := []*http.Server{httpsServer}

	if tlsManager.NeedsHTTPServer() {
		httpServer := &http.Server{
			Addr:    ":" + tlsManager.HTTPPort(),
			Handler: tlsManager.HTTPHandler(handler),
		}
		go serve(httpServer, false)
		servers = append(servers, httpServer)
	}
	return servers
}

func serve(srv *http.Server, secure bool) {
	var err error
	if secure {
		logger.Info(logger.AreaSecurity, "Starting HTTPS server on %s", srv.Addr)
		// Certificates come from TLSConfig.
		err = srv.ListenAndServeTLS("", "")
	} else {
		logger.Info(logger.AreaGeneral, "Starting HTTP server on %s", srv.Addr)
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(logger.AreaGeneral, "Server on %s failed: %v", srv.Addr, err)
	}
}
