package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrAborted is returned when the operator declines to overwrite a record.
var ErrAborted = errors.New("setup aborted")

// Question is one prompt of the setup wizard.
type Question struct {
	Key      string
	Text     string
	Default  string
	Choices  []string
	Required bool
}

// Accepts reports whether answer is acceptable for q.
func (q Question) Accepts(answer string) bool {
	if answer == "" {
		return !q.Required
	}
	if len(q.Choices) == 0 {
		return true
	}
	for _, c := range q.Choices {
		if c == answer {
			return true
		}
	}
	return false
}

// Answerer supplies the answer to a question. Implementations apply the
// question's default to empty input.
type Answerer interface {
	Answer(q Question) (string, error)
}

type AnswerFunc func(q Question) (string, error)

func (f AnswerFunc) Answer(q Question) (string, error) { return f(q) }

// ScriptedAnswers answers from a map keyed by Question.Key, falling back to
// the question default.
func ScriptedAnswers(answers map[string]string) Answerer {
	return AnswerFunc(func(q Question) (string, error) {
		a, ok := answers[q.Key]
		if !ok || a == "" {
			a = q.Default
		}
		if !q.Accepts(a) {
			return "", fmt.Errorf("answer %q not accepted for %s", a, q.Key)
		}
		return a, nil
	})
}

// PromptAnswerer asks on out and reads lines from in, repeating the question
// until the answer is acceptable.
func PromptAnswerer(in io.Reader, out io.Writer) Answerer {
	scanner := bufio.NewScanner(in)
	return AnswerFunc(func(q Question) (string, error) {
		text := q.Text
		if len(q.Choices) > 0 {
			text += fmt.Sprintf(" [%s]", strings.Join(q.Choices, "/"))
		}
		if q.Default != "" {
			text += fmt.Sprintf(" (default: %s)", q.Default)
		}
		text += ": "

		for {
			fmt.Fprint(out, text)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return "", err
				}
				return "", io.ErrUnexpectedEOF
			}
			answer := strings.TrimSpace(scanner.Text())
			if answer == "" {
				answer = q.Default
			}
			if q.Accepts(answer) {
				return answer, nil
			}
			if len(q.Choices) > 0 {
				fmt.Fprintf(out, "Supported options: %s\n", strings.Join(q.Choices, ", "))
			}
		}
	})
}

var yesNo = []string{"Y", "n"}

var DialectNames = map[string]string{
	"abs":  "Azure Blob Storage",
	"aqs":  "Azure Queue Storage",
	"s3":   "Amazon Simple Storage Service (S3)",
	"sns":  "Amazon SNS",
	"file": "Local file",
}

// buffered dialects collect events in worker memory before flushing.
func buffered(dialect string) bool {
	return dialect == "s3" || dialect == "abs" || dialect == "file"
}

// DialectQuestions lists the credential prompts of a dialect.
func DialectQuestions(dialect string) []Question {
	req := func(key, text, def string) Question {
		return Question{Key: dialect + "." + key, Text: text, Default: def, Required: true}
	}
	format := func(def string) Question {
		return Question{Key: dialect + ".file_format", Text: "File output format", Default: def, Choices: []string{"csv", "json"}}
	}
	switch dialect {
	case "s3":
		return []Question{
			req("access_key_id", "Access Key ID", ""),
			req("secret_access_key", "Secret Access Key", ""),
			req("region", "Region", ""),
			req("bucket", "Bucket", ""),
			req("blob_path", "Blob path", "{date}/"),
			format("json"),
			req("endpoint", "Endpoint", ""),
		}
	case "abs":
		return []Question{
			req("account", "Account", ""),
			req("access_key", "Access Key", ""),
			req("container", "Container", ""),
			req("blob_path", "Blob path", "{date}/"),
			format("csv"),
		}
	case "sns":
		return []Question{
			req("access_key_id", "Access Key ID", ""),
			req("secret_access_key", "Secret Access Key", ""),
			req("region", "Region", ""),
			req("topic_arn", "Topic ARN", ""),
		}
	case "aqs":
		return []Question{
			req("account", "Account", ""),
			req("access_key", "Access Key", ""),
			req("queue_name", "Queue Name", ""),
		}
	case "file":
		return []Question{
			req("file_path", "File path", "{date}/"),
			format("csv"),
			{Key: "file.compress", Text: "Do you want to compress the output files?", Default: "n", Choices: yesNo},
		}
	}
	return nil
}

// Wizard turns a sequence of answers into a configuration record. It holds
// no I/O of its own; CPUs seeds the worker size defaults.
type Wizard struct {
	CPUs int
}

func (w Wizard) Run(ask Answerer) (*Config, error) {
	cfg := &Config{}

	q := func(question Question) (string, error) {
		a, err := ask.Answer(question)
		if err != nil {
			return "", fmt.Errorf("%s: %w", question.Key, err)
		}
		if !question.Accepts(a) {
			return "", fmt.Errorf("%s: answer %q not accepted", question.Key, a)
		}
		return a, nil
	}
	yes := func(question Question) (bool, error) {
		question.Choices = yesNo
		a, err := q(question)
		return a == "Y", err
	}
	number := func(question Question) (int, error) {
		a, err := q(question)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s: expected a non-negative number, got %q", question.Key, a)
		}
		return n, nil
	}

	// logging
	logToFile, err := yes(Question{Key: "log_to_file", Text: "Do you want to log into a file", Default: "n"})
	if err != nil {
		return nil, err
	}
	if logToFile {
		if cfg.LogFile, err = q(Question{Key: "logfile", Text: "Log filepath", Default: "output.log", Required: true}); err != nil {
			return nil, err
		}
	}

	// security
	https, err := yes(Question{Key: "https", Text: "Hamustro will be served behind HTTPS?", Default: "n"})
	if err != nil {
		return nil, err
	}
	cfg.Signature = "required"
	if https {
		cfg.Signature = "optional"
	}
	if cfg.SharedSecret, err = q(Question{Key: "shared_secret", Text: "Please set a shared secret key", Required: true}); err != nil {
		return nil, err
	}

	// dialect
	choices := make([]string, 0, len(DialectNames))
	for name := range DialectNames {
		choices = append(choices, name)
	}
	sort.Strings(choices)
	if cfg.Dialect, err = q(Question{Key: "dialect", Text: "Please choose a dialect", Choices: choices, Required: true}); err != nil {
		return nil, err
	}
	isBuffered := buffered(cfg.Dialect)

	// workers
	cpus := w.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	recommended := cpus
	if !isBuffered {
		recommended *= 4
	}
	recommended++
	if cfg.MaxWorkerSize, err = number(Question{Key: "max_worker_size", Text: "How many worker do you need?", Default: strconv.Itoa(recommended), Required: true}); err != nil {
		return nil, err
	}
	if cfg.MaxQueueSize, err = number(Question{Key: "max_queue_size", Text: "Queue size", Default: strconv.Itoa(recommended * 20), Required: true}); err != nil {
		return nil, err
	}

	// storage
	if isBuffered {
		if cfg.BufferSize, err = number(Question{Key: "buffer_size", Text: "Define the buffer size/worker", Required: true}); err != nil {
			return nil, err
		}
		if cfg.SpreadBufferSize, err = yes(Question{Key: "spread_buffer_size", Text: "Do you want to randomize the buffer size near your setting to avoid flush conflicts?", Default: "Y"}); err != nil {
			return nil, err
		}
	} else {
		if cfg.RetryAttempt, err = number(Question{Key: "retry_attempt", Text: "When the saving has failed, how many times do you want to try again before we remove the event?", Default: "3", Required: true}); err != nil {
			return nil, err
		}
	}

	// flush
	if isBuffered {
		flushAPI, err := yes(Question{Key: "flush_api", Text: "Do you want to use the flush API?", Default: "n"})
		if err != nil {
			return nil, err
		}
		if flushAPI {
			if cfg.MaintenanceKey, err = q(Question{Key: "maintenance_key", Text: "Maintenance key", Default: "mk", Required: true}); err != nil {
				return nil, err
			}
		}
		autoFlush, err := yes(Question{Key: "auto_flush", Text: "Do you want to setup automatic flush?", Default: "n"})
		if err != nil {
			return nil, err
		}
		if autoFlush {
			if cfg.AutoFlushInterval, err = number(Question{Key: "auto_flush_interval", Text: "Automatic flush interval in minutes", Default: "60", Required: true}); err != nil {
				return nil, err
			}
		}
	}

	// dialect credentials
	section := make(map[string]string)
	for _, question := range DialectQuestions(cfg.Dialect) {
		a, err := q(question)
		if err != nil {
			return nil, err
		}
		section[strings.TrimPrefix(question.Key, cfg.Dialect+".")] = a
	}
	switch cfg.Dialect {
	case "s3":
		cfg.S3 = section
	case "abs":
		cfg.ABS = section
	case "sns":
		cfg.SNS = section
	case "aqs":
		cfg.AQS = section
	case "file":
		cfg.File = section
	}

	// collector behaviour
	if cfg.MaskedIP, err = yes(Question{Key: "masked_ip", Text: "Do you want to remove the last octet of incoming IP addresses?", Default: "n"}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
