// Command live-consultant holds a realtime voice consultation: microphone
// audio streams to the vendor's live channel and the spoken replies play
// through the speaker until interrupted or the session ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ahouse2/financial-legal-analysis/pkg/live"
	"github.com/ahouse2/financial-legal-analysis/pkg/media"
)

type options struct {
	model string
	voice string
	debug bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	loadEnvBestEffort()

	var opt options
	flag.StringVar(&opt.model, "model", "", "Live model override (default: native audio preview)")
	flag.StringVar(&opt.voice, "voice", "", "Prebuilt voice override (default: Kore)")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging and the input level meter")
	flag.Parse()

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing GEMINI_API_KEY (or GOOGLE_API_KEY); set it in the environment or a .env file")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	speaker, err := media.OpenSpeaker()
	if err != nil {
		fmt.Fprintln(os.Stderr, "open speaker:", err)
		return 1
	}
	defer speaker.Close()

	consultant, err := live.NewConsultant(live.ConsultantConfig{
		Dial: func(ctx context.Context) (live.Stream, error) {
			return live.Connect(ctx, live.Config{
				APIKey: apiKey,
				Model:  opt.model,
				Voice:  opt.voice,
				Logger: logger,
			})
		},
		OpenMic: func() (live.Source, error) { return media.OpenMicrophone() },
		Sink:    speaker,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := consultant.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "start consultation:", err)
		return 1
	}
	defer consultant.Stop()

	fmt.Fprintln(os.Stderr, "consultation live; speak into the microphone, Ctrl-C ends the session")

	var meter *time.Ticker
	var meterC <-chan time.Time
	if opt.debug {
		meter = time.NewTicker(2 * time.Second)
		defer meter.Stop()
		meterC = meter.C
	}

	for {
		select {
		case <-ctx.Done():
			return 0
		case err := <-consultant.ErrCh():
			fmt.Fprintln(os.Stderr, "session error:", err)
			return 1
		case <-meterC:
			peak, rms := consultant.Level()
			logger.Debug("mic level", "peak_abs", peak, "rms", fmt.Sprintf("%.4f", rms))
			if peak == 0 {
				fmt.Fprintln(os.Stderr, "[warning] mic input is all zeros; check the input device and OS microphone permissions")
			}
		}
	}
}

// loadEnvBestEffort walks up from the working directory and loads the first
// .env it finds, leaving already-exported variables untouched.
func loadEnvBestEffort() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 8; i++ {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
