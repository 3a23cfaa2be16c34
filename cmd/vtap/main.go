package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"vtap/capture"
)

const version = "0.1.0"

// resolveOutputPath implements spec §6's "a bare filename is resolved
// under the operator's desktop" rule: a path with no directory
// component is written under $HOME/Desktop rather than the cwd.
func resolveOutputPath(path string) string {
	if strings.ContainsRune(path, filepath.Separator) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, "Desktop", path)
}

// writeProgressLine redraws a single status line on stderr, mirroring
// the original CLI's in-place progress display rather than scrolling a
// new log line per tick.
func writeProgressLine(snap capture.StatsSnapshot) {
	var received, lost uint64
	var lostSigned int64
	for _, st := range snap.Streams {
		received += st.Received
		lostSigned += st.Lost
	}
	if lostSigned > 0 {
		lost = uint64(lostSigned)
	}
	fmt.Fprintf(os.Stderr, "\r\033[K[%s] streams=%d received=%d lost=%d",
		snap.DialogState, len(snap.Streams), received, lost)
}

func main() {
	var (
		iface      = pflag.StringP("interface", "i", "", "Network interface to capture on.")
		outputFile = pflag.StringP("output", "o", "", "Write captured frames to this libpcap file.")
		timeBudget = pflag.DurationP("time", "t", 0, "Stop after this much wall-clock time has elapsed. 0 disables the budget.")
		auto       = pflag.BoolP("auto", "a", false, "Auto mode: stop automatically once no call materializes or the call finishes.")
		debug      = pflag.BoolP("debug", "d", false, "Enable debug-level logging.")
		silent     = pflag.BoolP("silent", "s", false, "Suppress informational logging; only warnings and errors are printed.")
		list       = pflag.BoolP("list", "l", false, "List capture-capable interfaces and exit.")
		configPath = pflag.StringP("config", "c", "", "Optional YAML tuning file.")
		showVer    = pflag.BoolP("version", "V", false, "Print version and exit.")
		help       = pflag.BoolP("help", "h", false, "Display this help text.")
		progress   = pflag.BoolP("progress", "p", false, "Redraw a single-line capture progress display on stderr.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "vtap - VoIP packet capture and call-quality analyzer.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: vtap --interface <name> [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if *showVer {
		fmt.Println("vtap", version)
		os.Exit(0)
	}
	if *list {
		names, err := capture.ListInterfaces()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		os.Exit(0)
	}

	level := slog.LevelInfo
	switch {
	case *debug:
		level = slog.LevelDebug
	case *silent:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if *iface == "" {
		logger.Error("startup: --interface is required")
		pflag.Usage()
		os.Exit(1)
	}
	if *outputFile == "" {
		logger.Error("startup: --output is required")
		pflag.Usage()
		os.Exit(1)
	}

	cfg, err := capture.LoadConfig(*configPath)
	if err != nil {
		logger.Error("startup: config error", "error", err)
		os.Exit(1)
	}

	writer, err := capture.NewPcapWriter(resolveOutputPath(*outputFile), 65535)
	if err != nil {
		logger.Error("startup: failed to open output file", "error", err)
		os.Exit(1)
	}

	source, err := capture.OpenLiveSource(*iface, "udp", 65535)
	if err != nil {
		logger.Error("startup: failed to open interface", "error", err)
		if writer != nil {
			writer.Close()
		}
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer cancel()

	sess := capture.NewSession(cfg, logger, writer, capture.DefaultCodecFactory)

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-statsTicker.C:
				if *progress {
					writeProgressLine(sess.Snapshot())
				}
				if stop, reason := sess.ShouldTerminate(now, *timeBudget, *auto); stop {
					logger.Info("capture: stopping", "reason", reason)
					sess.RequestStop()
					source.Break()
					return
				}
				if sess.Stopping() {
					source.Break()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("capture: signal received, shutting down")
		sess.RequestStop()
		source.Break()
	}()

	logger.Info("capture: starting", "interface", *iface, "signaling_port", cfg.SignalingPort)
	runErr := source.Run(sess.OnPacket)
	if *progress {
		fmt.Fprintln(os.Stderr)
	}

	closeErr := sess.Close()
	if srcCloseErr := source.Close(); srcCloseErr != nil && closeErr == nil {
		closeErr = srcCloseErr
	}

	snap := sess.Snapshot()
	logger.Info("capture: finished", "dialog_state", snap.DialogState, "streams", len(snap.Streams))
	for _, st := range snap.Streams {
		logger.Info("stream summary",
			"ssrc", st.SSRC, "received", st.Received, "lost", st.Lost,
			"out_of_order", st.OutOfOrder, "concealed_ms", st.ConcealedMS)
	}

	if runErr != nil && ctx.Err() == nil && !sess.Stopping() {
		logger.Error("capture: stopped with error", "error", runErr)
		os.Exit(1)
	}
	if closeErr != nil {
		logger.Error("capture: cleanup error", "error", closeErr)
		os.Exit(1)
	}
}
