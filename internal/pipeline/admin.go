package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the capture debug endpoints under /debug/. They
// are reachable only from localhost or over Tailscale.
func (r *Runner) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Capture cycle", func() any { return r.Stats().Cycle })
	debug.KVFunc("Capture frames", func() any { return r.Stats().Framer.Frames })
	debug.KVFunc("Buffer overflows", func() any { return r.Stats().Buffer.Overflows })

	debug.HandleFunc("capture", "capture pipeline counters (JSON)", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.Stats()); err != nil {
			http.Error(w, "Failed to encode stats", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("capture/resync", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		started, err := r.TriggerResync(req.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to trigger resync: %v", err), http.StatusServiceUnavailable)
			return
		}
		if !started {
			http.Error(w, "Resync already in progress", http.StatusConflict)
			return
		}
		fmt.Fprintln(w, "resync started")
	})

	debug.HandleSilentFunc("capture/event", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw := strings.TrimSpace(req.FormValue("code"))
		if raw == "" {
			http.Error(w, "Missing code", http.StatusBadRequest)
			return
		}
		code, err := strconv.ParseUint(raw, 0, 8)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid code %q: must be 0-255", raw), http.StatusBadRequest)
			return
		}
		if err := r.WriteEvent(req.Context(), byte(code)); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write event: %v", err), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "event 0x%02x written\n", code)
	})
}
