package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
)

const defaultPprofAddr = "localhost:6060"

// startPprof serves pprof for profiling long scans. Only called when
// PprofEnabled is set in config.
func startPprof(addr string) {
	if addr == "" {
		addr = defaultPprofAddr
	}
	go func() {
		Logger().Info("pprof_server_start", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			Logger().Error("pprof_server_error", slog.String("error", err.Error()))
		}
	}()
}
