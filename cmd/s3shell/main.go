// Command s3shell serves buckets as per-identity directory trees.
//
// Usage:
//
//	s3shell [-config s3shell.yaml] serve
//	s3shell [-config s3shell.yaml] -as alice ls /docs
//	s3shell -as alice put ./report.pdf /docs/report.pdf
//
// Run "s3shell -h" for the full command list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/s3shell/internal/config"
	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
)

const usageText = `usage: s3shell [flags] <command> [args]

commands:
  serve                  run the HTTP gateway
  ls     [PATH]          list a directory
  stat   PATH            show one entry
  get    PATH [LOCAL]    download a file (LOCAL "-" or omitted: stdout)
  put    LOCAL PATH      upload a file (LOCAL "-": stdin)
  mv     FROM TO         rename a file or an empty directory
  rm     PATH            remove a file
  mkdir  PATH            create a directory
  rmdir  PATH            remove an empty directory
  link   PATH [TTL]      print a presigned download URL (default 15m)
  buckets                list the store's buckets (no -as needed)
  version                print the version

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("s3shell", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", getEnv("S3SHELL_CONFIG", "s3shell.yaml"), "path to the configuration file")
	identity := flags.String("as", getEnv("S3SHELL_IDENTITY", ""), "identity whose shell client commands use")
	flags.Usage = func() {
		fmt.Fprint(stderr, usageText)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	cmd, cmdArgs := flags.Arg(0), flags.Args()[1:]
	if cmd == "version" {
		fmt.Fprintf(stdout, "s3shell %s (commit %s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "s3shell: %v\n", err)
		return 1
	}
	cfg.Log.Output = stderr
	log := logger.New(&cfg.Log)

	a, err := open(ctx, cfg, log)
	if err != nil {
		log.ErrorWith("startup failed", err, nil)
		return 1
	}
	defer a.Close()
	a.stdin, a.stdout = stdin, stdout

	if cmd == "serve" {
		err = a.serve(ctx)
	} else {
		err = a.runCommand(ctx, *identity, cmd, cmdArgs)
	}
	if err != nil {
		fmt.Fprintf(stderr, "s3shell %s: %v\n", cmd, err)
		return exitCode(err)
	}
	return 0
}

// exitCode separates usage mistakes from runtime failures.
func exitCode(err error) int {
	if errs.IsInvalidInput(err) {
		return 2
	}
	return 1
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
