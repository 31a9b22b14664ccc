package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/usbsniff/internal/capture"
	"github.com/banshee-data/usbsniff/internal/db"
	"github.com/banshee-data/usbsniff/internal/hostlink"
	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/pipeline"
	"github.com/banshee-data/usbsniff/internal/recorder"
	"github.com/banshee-data/usbsniff/internal/transport"
)

type captureFlags struct {
	serialPath string
	pcapPath   string
	iface      string
	inputPath  string
	format     string
	udpPort    int

	framer string
	depth  int
	idle   uint64
	policy string

	outPath       string
	recordDir     string
	forwardAddr   string
	forwardMux    bool
	grpcAddr      string
	dbPath        string
	statsInterval time.Duration
	listen        string
}

func newCaptureCmd(a *app) *cobra.Command {
	f := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run the framing pipeline on a capture source",
		Long: `Run the framing pipeline on exactly one capture source and deliver host
frames to the configured sinks.

Sources: --serial PORT, --pcap FILE, --iface NAME (requires the pcap build
tag) or --input FILE ("-" for stdin).
Sinks: --out FILE (frame stream), --record-dir DIR, --forward HOST:PORT,
--grpc ADDR (frame stream for "usbsniff watch") and --db FILE. Admin routes
are served under /debug/ when --listen is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyCaptureFlags(cmd, f)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runCapture(ctx, cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.serialPath, "serial", "", "serial port to capture from")
	fl.StringVar(&f.pcapPath, "pcap", "", "pcap or pcapng file carrying capture data over UDP")
	fl.StringVar(&f.iface, "iface", "", "network interface for live UDP capture")
	fl.StringVar(&f.inputPath, "input", "", "file of capture bytes, - for stdin")
	fl.StringVar(&f.format, "format", "", "capture byte format: raw or tagged")
	fl.IntVar(&f.udpPort, "udp-port", 0, "UDP port carrying capture data")

	fl.StringVar(&f.framer, "framer", "", "host framer: batch or stream")
	fl.IntVar(&f.depth, "depth", 0, "flush depth in words")
	fl.Uint64Var(&f.idle, "idle", 0, "idle timeout in cycles")
	fl.StringVar(&f.policy, "policy", "", "burst buffer overflow policy: backpressure or drop")

	fl.StringVarP(&f.outPath, "out", "o", "", "write host frames to this file")
	fl.StringVar(&f.recordDir, "record-dir", "", "record frames into this log directory")
	fl.StringVar(&f.forwardAddr, "forward", "", "forward frames over UDP to host:port")
	fl.BoolVar(&f.forwardMux, "forward-mux", false, "prefix forwarded frames with a mux header")
	fl.StringVar(&f.grpcAddr, "grpc", "", "serve frames to gRPC subscribers on this address")
	fl.StringVar(&f.dbPath, "db", "", "SQLite database for session and frame metadata")
	fl.DurationVar(&f.statsInterval, "stats-interval", 10*time.Second, "how often counters are stored in the database")
	fl.StringVar(&f.listen, "listen", "", "admin HTTP listen address")
	return cmd
}

// applyCaptureFlags lets explicit flags override the config file.
func (a *app) applyCaptureFlags(cmd *cobra.Command, f *captureFlags) {
	fl := cmd.Flags()
	if fl.Changed("format") {
		a.cfg.CaptureFormat = &f.format
	}
	if fl.Changed("udp-port") {
		a.cfg.UDPPort = &f.udpPort
	}
	if fl.Changed("framer") {
		a.cfg.Framer = &f.framer
	}
	if fl.Changed("depth") {
		a.cfg.FlushDepthWords = &f.depth
	}
	if fl.Changed("idle") {
		a.cfg.IdleTimeoutCycles = &f.idle
	}
	if fl.Changed("policy") {
		a.cfg.OverflowPolicy = &f.policy
	}
	if fl.Changed("record-dir") {
		a.cfg.RecordDir = &f.recordDir
	}
	if fl.Changed("forward") {
		a.cfg.ForwardAddr = &f.forwardAddr
	}
	if fl.Changed("grpc") {
		a.cfg.GRPCAddr = &f.grpcAddr
	}
	if fl.Changed("db") {
		a.cfg.DBPath = &f.dbPath
	}
}

func (a *app) openSource(f *captureFlags) (capture.Source, string, error) {
	set := 0
	for _, s := range []string{f.serialPath, f.pcapPath, f.iface, f.inputPath} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return nil, "", errors.New("exactly one of --serial, --pcap, --iface or --input is required")
	}
	format := a.cfg.GetCaptureFormat()
	switch {
	case f.serialPath != "":
		src, err := capture.OpenSerial(f.serialPath, a.cfg.GetSerial(), format, capture.OpenSerialPort)
		return src, "serial:" + f.serialPath, err
	case f.pcapPath != "":
		src, err := capture.OpenPCAP(f.pcapPath, a.cfg.GetUDPPort(), format)
		if err != nil {
			return nil, "", err
		}
		return src, "pcap:" + f.pcapPath, nil
	case f.iface != "":
		src, err := capture.OpenLive(f.iface, a.cfg.GetUDPPort(), format)
		if err != nil {
			return nil, "", err
		}
		return src, "iface:" + f.iface, nil
	case f.inputPath == "-":
		return capture.NewReaderSource(os.Stdin, format), "stdin", nil
	default:
		file, err := os.Open(f.inputPath)
		if err != nil {
			return nil, "", err
		}
		// the source closes file
		return capture.NewReaderSource(file, format), "file:" + f.inputPath, nil
	}
}

// frameFile writes frames in wire form.
type frameFile struct {
	f *os.File
	w *bufio.Writer
}

func createFrameFile(path string) (*frameFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &frameFile{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *frameFile) WriteFrame(fr transport.Frame) error {
	return transport.WriteFrame(s.w, fr)
}

func (s *frameFile) Close() error {
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) runCapture(ctx context.Context, cmd *cobra.Command, f *captureFlags) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	p, err := pipeline.New(a.cfg.PipelineConfig())
	if err != nil {
		return err
	}
	src, sourceName, err := a.openSource(f)
	if err != nil {
		return fmt.Errorf("open capture source: %w", err)
	}

	var (
		sinks   []pipeline.FrameSink
		closers []io.Closer
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				monitoring.Warnf("capture: close sink: %v", err)
			}
		}
	}()

	if f.outPath != "" {
		out, err := createFrameFile(f.outPath)
		if err != nil {
			src.Close()
			return err
		}
		sinks = append(sinks, out)
		closers = append(closers, out)
	}

	var (
		database  *db.DB
		sessionID string
	)
	if path := a.cfg.GetDBPath(); path != "" {
		database, err = db.NewDB(path)
		if err != nil {
			src.Close()
			return err
		}
		closers = append(closers, database)
		cfgJSON, _ := json.Marshal(a.cfg)
		sessionID, err = database.StartSession(ctx, db.Session{
			Source:  sourceName,
			Framer:  string(a.cfg.GetFramer()),
			ClockHz: a.cfg.GetClockHz(),
			Config:  cfgJSON,
		})
		if err != nil {
			src.Close()
			return err
		}
		store := db.NewFrameStore(database, sessionID, nil, 0)
		sinks = append(sinks, store)
		closers = append(closers, store)
	}

	if dir := a.cfg.GetRecordDir(); dir != "" {
		rec, err := recorder.NewRecorder(dir, recorder.Options{
			SessionID: sessionID,
			ClockHz:   a.cfg.GetClockHz(),
			Framer:    string(a.cfg.GetFramer()),
		})
		if err != nil {
			src.Close()
			return err
		}
		sinks = append(sinks, rec)
		closers = append(closers, rec)
	}

	if addr := a.cfg.GetForwardAddr(); addr != "" {
		fw, err := hostlink.NewForwarder(addr, hostlink.Options{Mux: f.forwardMux})
		if err != nil {
			src.Close()
			return err
		}
		fw.Start(ctx)
		sinks = append(sinks, fw)
		closers = append(closers, fw)
	}

	if addr := a.cfg.GetGRPCAddr(); addr != "" {
		pub := hostlink.NewPublisher(hostlink.PublisherConfig{ListenAddr: addr})
		if err := pub.Start(); err != nil {
			src.Close()
			return err
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub)
	}

	runner := pipeline.NewRunner(p, src, pipeline.RunnerOptions{ClockHz: a.cfg.GetClockHz()}, sinks...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	if f.listen != "" {
		mux := http.NewServeMux()
		runner.AttachAdminRoutes(mux)
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		server := &http.Server{Addr: f.listen, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					monitoring.Warnf("capture: admin server: %v", err)
				}
			}()
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				monitoring.Warnf("capture: admin server shutdown: %v", err)
			}
		}()
	}

	if database != nil && f.statsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(f.statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case now := <-ticker.C:
					if err := database.RecordStats(runCtx, sessionID, now, runner.Stats()); err != nil {
						monitoring.Warnf("capture: store stats: %v", err)
					}
				}
			}
		}()
	}

	runErr := runner.Run(ctx)
	cancel()
	wg.Wait()

	stats := runner.Stats()
	if database != nil {
		now := time.Now()
		if err := database.RecordStats(context.Background(), sessionID, now, stats); err != nil {
			monitoring.Warnf("capture: store stats: %v", err)
		}
		if err := database.EndSession(context.Background(), sessionID, now); err != nil {
			monitoring.Warnf("capture: end session: %v", err)
		}
	}
	if errs := runner.SinkErrors(); errs > 0 {
		monitoring.Warnf("capture: %d sink errors", errs)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
