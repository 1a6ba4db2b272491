package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"hamustro/builder"
	"hamustro/codec"
	"hamustro/config"
	"hamustro/fixtures"
	"hamustro/metrics"
	"hamustro/models"
	"hamustro/sender"
)

const usage = `usage:
  hamustro generate [-n N] [-r] [-format protobuf,json] [-version v1|v2] [-legacy]
                    [-seed S] [-workers W] [-metrics-file F] CONFIG DIR
  hamustro send [-format protobuf|json] [-version v1|v2] [-timeout D] CONFIG URL
  hamustro setup [-o PATH]
`

var errUsage = errors.New("invalid usage")

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gracefulShutdown(cancel)

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// gracefulShutdown cancels the running command on SIGINT/SIGTERM.
func gracefulShutdown(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Println("Shutdown signal received...")
	cancel()
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:], stdout)
	case "send":
		return runSend(ctx, args[1:], stdout)
	case "setup":
		return runSetup(args[1:], stdin, stdout)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func runGenerate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stdout)
	count := fs.Int("n", 100, "number of messages to generate")
	random := fs.Bool("r", false, "random payload count (1-25) per message")
	formatList := fs.String("format", string(codec.FormatProtobuf), "comma separated output formats")
	versionName := fs.String("version", "v2", "message version (v1 or v2)")
	legacy := fs.Bool("legacy", false, "shorthand for -version v1 -format protobuf")
	seed := fs.Uint64("seed", 0, "seed for reproducible fixtures (0 draws a random one)")
	workers := fs.Int("workers", 1, "number of concurrent file writers")
	metricsFile := fs.String("metrics-file", "", "write prometheus textfile metrics to this path")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: generate expects CONFIG and DIR", errUsage)
	}
	if *count < 1 {
		return fmt.Errorf("%w: -n must be at least 1", errUsage)
	}

	cfg, err := config.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	version, err := models.ParseVersion(*versionName)
	if err != nil {
		return err
	}
	if *legacy {
		version = models.V1
	}
	formats, err := codec.ParseFormats(*formatList)
	if err != nil {
		return err
	}

	opts := []builder.Option{builder.WithTimestamp(builder.FixedTimestamp(cfg.FixtureTimestamp()))}
	if *seed != 0 {
		opts = append(opts, builder.WithSeed(*seed))
	}

	m := metrics.New()
	w := &fixtures.Writer{
		Dir:     fs.Arg(1),
		Secret:  cfg.SharedSecret,
		Version: version,
		Formats: formats,
		Builder: builder.New(version, opts...),
		Workers: *workers,
		Metrics: m,
	}

	start := time.Now()
	if err := w.WriteBatch(ctx, *count, *random); err != nil {
		return err
	}
	log.Printf("Generate: %d %s messages (%v) in %s, signed with X-Hamustro-Time %s, took %v",
		*count, version, formats, w.Dir, cfg.FixtureTimestamp(), time.Since(start))

	if *metricsFile != "" {
		return m.WriteTextfile(*metricsFile)
	}
	return nil
}

func runSend(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stdout)
	formatName := fs.String("format", string(codec.FormatProtobuf), "body format (protobuf or json)")
	versionName := fs.String("version", "v2", "message version (v1 or v2)")
	timeout := fs.Duration("timeout", 0, "request timeout (defaults to the config timeout)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: send expects CONFIG and URL", errUsage)
	}

	cfg, err := config.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	version, err := models.ParseVersion(*versionName)
	if err != nil {
		return err
	}
	format, err := codec.ParseFormat(*formatName)
	if err != nil {
		return err
	}
	d := *timeout
	if d <= 0 {
		d = cfg.HTTPTimeout()
	}

	client, err := sender.New(fs.Arg(1), cfg.SharedSecret,
		sender.WithVersion(version),
		sender.WithFormat(format),
		sender.WithTimeout(d),
	)
	if err != nil {
		return err
	}

	code, err := client.Send(ctx, builder.New(version).Build(false))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Response code: %d\n", code)
	return nil
}

func runSetup(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(stdout)
	path := fs.String("o", "config.json", "where to write the configuration")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	ask := config.PromptAnswerer(stdin, stdout)

	if _, err := os.Stat(*path); err == nil {
		overwrite, err := ask.Answer(config.Question{
			Key:     "overwrite",
			Text:    fmt.Sprintf("%s already exists. Do you want to overwrite it?", *path),
			Default: "n",
			Choices: []string{"Y", "n"},
		})
		if err != nil {
			return err
		}
		if overwrite != "Y" {
			return config.ErrAborted
		}
	}

	cfg, err := config.Wizard{CPUs: runtime.NumCPU()}.Run(ask)
	if err != nil {
		return err
	}
	if err := cfg.Save(*path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Configuration written to %s\n", *path)
	return nil
}
