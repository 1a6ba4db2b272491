package config

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestWizardBufferedDialect(t *testing.T) {
	answers := map[string]string{
		"shared_secret":        "s3cr3t",
		"dialect":              "s3",
		"buffer_size":          "5000",
		"flush_api":            "Y",
		"s3.access_key_id":     "AKIA",
		"s3.secret_access_key": "secret",
		"s3.region":            "eu-west-1",
		"s3.bucket":            "events",
		"s3.endpoint":          "https://s3.amazonaws.com",
	}

	cfg, err := Wizard{CPUs: 4}.Run(ScriptedAnswers(answers))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.SharedSecret != "s3cr3t" || cfg.Dialect != "s3" {
		t.Errorf("Unexpected secret/dialect: %q/%q", cfg.SharedSecret, cfg.Dialect)
	}
	if cfg.Signature != "required" {
		t.Errorf("Expected signature required without HTTPS, got %q", cfg.Signature)
	}
	if cfg.MaxWorkerSize != 5 || cfg.MaxQueueSize != 100 {
		t.Errorf("Expected buffered defaults 5/100, got %d/%d", cfg.MaxWorkerSize, cfg.MaxQueueSize)
	}
	if cfg.BufferSize != 5000 || !cfg.SpreadBufferSize {
		t.Errorf("Unexpected buffer settings: %d %v", cfg.BufferSize, cfg.SpreadBufferSize)
	}
	if cfg.MaintenanceKey != "mk" {
		t.Errorf("Expected default maintenance key, got %q", cfg.MaintenanceKey)
	}
	if cfg.S3["blob_path"] != "{date}/" || cfg.S3["file_format"] != "json" || cfg.S3["bucket"] != "events" {
		t.Errorf("Unexpected s3 section: %v", cfg.S3)
	}
	if cfg.RetryAttempt != 0 {
		t.Error("Buffered dialects do not ask for retries")
	}
}

func TestWizardSimpleDialect(t *testing.T) {
	answers := map[string]string{
		"https":                 "Y",
		"shared_secret":         "s3cr3t",
		"dialect":               "sns",
		"sns.access_key_id":     "AKIA",
		"sns.secret_access_key": "secret",
		"sns.region":            "us-east-1",
		"sns.topic_arn":         "arn:aws:sns:us-east-1:1:events",
		"masked_ip":             "Y",
	}

	cfg, err := Wizard{CPUs: 2}.Run(ScriptedAnswers(answers))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Signature != "optional" {
		t.Errorf("Expected optional signature behind HTTPS, got %q", cfg.Signature)
	}
	if cfg.MaxWorkerSize != 9 || cfg.RetryAttempt != 3 {
		t.Errorf("Expected 9 workers and 3 retries, got %d/%d", cfg.MaxWorkerSize, cfg.RetryAttempt)
	}
	if !cfg.MaskedIP {
		t.Error("Expected masked ip")
	}
	if cfg.SNS["topic_arn"] != "arn:aws:sns:us-east-1:1:events" {
		t.Errorf("Unexpected sns section: %v", cfg.SNS)
	}
}

func TestWizardRejectsBadAnswers(t *testing.T) {
	tests := []struct {
		name    string
		answers map[string]string
	}{
		{name: "missing secret", answers: map[string]string{"dialect": "aqs"}},
		{name: "unknown dialect", answers: map[string]string{"shared_secret": "s", "dialect": "ftp"}},
		{name: "non numeric workers", answers: map[string]string{"shared_secret": "s", "dialect": "aqs", "max_worker_size": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (Wizard{CPUs: 1}).Run(ScriptedAnswers(tt.answers)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestPromptAnswerer(t *testing.T) {
	in := strings.NewReader("maybe\n\nY\n")
	var out bytes.Buffer
	ask := PromptAnswerer(in, &out)

	q := Question{Key: "x", Text: "Continue?", Default: "n", Choices: []string{"Y", "n"}}

	// "maybe" is rejected and the question asked again; the empty line takes
	// the default.
	got, err := ask.Answer(q)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "n" {
		t.Errorf("Expected default answer, got %q", got)
	}
	if !strings.Contains(out.String(), "Continue? [Y/n] (default: n): ") {
		t.Errorf("Unexpected prompt %q", out.String())
	}
	if !strings.Contains(out.String(), "Supported options: Y, n") {
		t.Errorf("Expected the options hint, got %q", out.String())
	}

	got, err = ask.Answer(q)
	if err != nil || got != "Y" {
		t.Errorf("Expected Y, got %q (%v)", got, err)
	}

	if _, err := ask.Answer(q); err != io.ErrUnexpectedEOF {
		t.Errorf("Expected io.ErrUnexpectedEOF at end of input, got %v", err)
	}
}
