// Command consultant runs the document analysis workflows from the terminal:
// a full disclosure analysis, an interactive text consultation, spoken
// summary synthesis and lifestyle visual generation.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/ahouse2/financial-legal-analysis/pkg/analysis"
	"github.com/ahouse2/financial-legal-analysis/pkg/audio"
	"github.com/ahouse2/financial-legal-analysis/pkg/chat"
	"github.com/ahouse2/financial-legal-analysis/pkg/core/types"
)

const usage = `usage: consultant <command> [flags]

commands:
  analyze   compare disclosure documents and print the structured report
  chat      interactive consultation with the analyst persona
  speak     synthesize text to speech and write a WAV file
  visual    render a lifestyle metaphor prompt as a JPEG

run "consultant <command> -h" for command flags
`

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	loadEnvBestEffort()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "analyze":
		return runAnalyze(ctx, os.Args[2:])
	case "chat":
		return runChat(ctx, os.Args[2:])
	case "speak":
		return runSpeak(ctx, os.Args[2:])
	case "visual":
		return runVisual(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		return 2
	}
}

func newModels(ctx context.Context) (*genai.Models, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY (or GOOGLE_API_KEY); set it in the environment or a .env file")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client.Models, nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runAnalyze(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	var docs stringList
	fs.Var(&docs, "doc", "Disclosure document to include (repeatable)")
	caseContext := fs.String("context", "", "Free-text case context")
	withVisual := fs.Bool("visual", false, "Also render the lifestyle metaphor image")
	visualOut := fs.String("visual-out", "lifestyle.jpg", "Path for the rendered image")
	debug := fs.Bool("debug", false, "Enable debug logging")
	_ = fs.Parse(args)

	logger := newLogger(*debug)
	slog.SetDefault(logger)

	attachments := make([]types.Attachment, 0, len(docs))
	for _, path := range docs {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read document:", err)
			return 1
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		attachments = append(attachments, types.Attachment{
			Name:     filepath.Base(path),
			MIMEType: mimeType,
			Data:     data,
		})
	}

	parts, err := analysis.BuildRequest(*caseContext, attachments)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	models, err := newModels(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	svc, err := analysis.NewService(models, analysis.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	report, err := svc.Analyze(ctx, parts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "analysis failed:", err)
		return 1
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode report:", err)
		return 1
	}
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "total discrepancy: %.2f across %d categories\n",
		types.DiscrepancyTotal(report.ChartRows), len(report.ChartRows))

	if *withVisual && report.VisualPrompt != "" {
		img, _, err := svc.GenerateVisual(ctx, report.VisualPrompt)
		if err != nil {
			fmt.Fprintln(os.Stderr, "visual generation failed:", err)
			return 1
		}
		if err := os.WriteFile(*visualOut, img, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "write image:", err)
			return 1
		}
		fmt.Fprintln(os.Stderr, "wrote", *visualOut)
	}
	return 0
}

func runChat(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	debug := fs.Bool("debug", false, "Enable debug logging")
	_ = fs.Parse(args)

	logger := newLogger(*debug)
	slog.SetDefault(logger)

	models, err := newModels(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	svc, err := chat.NewService(models, chat.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	conv := chat.NewConversation()
	fmt.Fprintln(os.Stderr, "consultation started; empty line or Ctrl-D exits")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		reply, err := svc.SendTurn(ctx, conv, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintln(os.Stderr, "turn failed:", err)
			continue
		}
		fmt.Println(reply.Text)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "read input:", err)
		return 1
	}
	return 0
}

func runSpeak(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	text := fs.String("text", "", "Text to speak (required)")
	out := fs.String("out", "summary.wav", "Output WAV path")
	debug := fs.Bool("debug", false, "Enable debug logging")
	_ = fs.Parse(args)

	logger := newLogger(*debug)
	slog.SetDefault(logger)

	if strings.TrimSpace(*text) == "" {
		fmt.Fprintln(os.Stderr, "-text is required")
		return 2
	}

	models, err := newModels(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	svc, err := analysis.NewService(models, analysis.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	pcm, err := svc.Synthesize(ctx, *text)
	if err != nil {
		fmt.Fprintln(os.Stderr, "synthesis failed:", err)
		return 1
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create output:", err)
		return 1
	}
	defer f.Close()
	if err := audio.WriteWAV(f, pcm, audio.PlaybackSampleRateHz, audio.Channels); err != nil {
		fmt.Fprintln(os.Stderr, "write wav:", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%s of audio)\n", *out,
		audio.PCMDuration(len(pcm), audio.PlaybackSampleRateHz, audio.Channels))
	return 0
}

func runVisual(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("visual", flag.ExitOnError)
	prompt := fs.String("prompt", "", "Image prompt (required)")
	out := fs.String("out", "lifestyle.jpg", "Output image path")
	debug := fs.Bool("debug", false, "Enable debug logging")
	_ = fs.Parse(args)

	logger := newLogger(*debug)
	slog.SetDefault(logger)

	if strings.TrimSpace(*prompt) == "" {
		fmt.Fprintln(os.Stderr, "-prompt is required")
		return 2
	}

	models, err := newModels(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	svc, err := analysis.NewService(models, analysis.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	img, mimeType, err := svc.GenerateVisual(ctx, *prompt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "visual generation failed:", err)
		return 1
	}
	if err := os.WriteFile(*out, img, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write image:", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes, %s)\n", *out, len(img), mimeType)
	return 0
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
