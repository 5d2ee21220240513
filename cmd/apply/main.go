package main

// Fill in and send an application from the terminal:
//   go run ./cmd/apply
//   go run ./cmd/apply -answers application.yaml -stage

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"admissions-portal/internal/apiclient"
	"admissions-portal/internal/cli"
	"admissions-portal/internal/form"
	"admissions-portal/internal/shared/config"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/submission"
)

func main() {
	answersPath := flag.String("answers", "", "YAML answers file; skips the interactive prompts")
	formPath := flag.String("form", "", "form definition to use instead of the built-in one")
	stage := flag.Bool("stage", false, "send documents only when the application is submitted")
	flag.Parse()

	cfg := config.LoadClient()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, *answersPath, *formPath, *stage))
}

func run(ctx context.Context, cfg config.ClientConfig, answersPath, formPath string, stage bool) int {
	def, err := loadForm(formPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	client, err := apiclient.NewFromConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	runner := cli.New(def, client, client, cli.NewSurveyDriver(os.Stdout), cli.Options{
		Stage:               stage,
		UploadMaxConcurrent: cfg.UploadMaxConcurrent,
		UploadTimeout:       cfg.UploadTimeout,
		SubmitParallelism:   cfg.SubmitParallelism,
	})
	defer runner.Close()

	var out submission.Outcome
	if answersPath != "" {
		af, loadErr := cli.LoadAnswersFile(answersPath)
		if loadErr != nil {
			fmt.Fprintln(os.Stderr, loadErr)
			return 2
		}
		out, err = runner.Apply(ctx, af)
	} else {
		out, err = runner.Run(ctx)
	}

	switch {
	case errors.Is(err, cli.ErrAborted):
		return 130
	case err != nil:
		telemetry.Error("apply.failed", map[string]any{"error": err.Error()})
		fmt.Fprintln(os.Stderr, err)
		return 1
	case out.Status != submission.StatusSucceeded:
		return 1
	}
	return 0
}

func loadForm(path string) (*form.Definition, error) {
	if path == "" {
		return form.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form definition: %w", err)
	}
	return form.Load(data)
}
