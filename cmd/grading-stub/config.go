package main

import (
	"fmt"
	"os"
	"time"

	"essaygrade/internal/grading/model"
	"essaygrade/internal/stub"
	"essaygrade/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8000"
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// QuestionSeed is a question loaded at startup.
type QuestionSeed struct {
	ExamID   int64    `yaml:"examID"`
	Title    string   `yaml:"title"`
	Number   string   `yaml:"number"`
	Text     string   `yaml:"text"`
	MaxChars int      `yaml:"maxChars"`
	Points   int      `yaml:"points"`
	Keywords []string `yaml:"keywords"`
}

// AppConfig holds grading-stub configuration.
type AppConfig struct {
	Server    ServerConfig   `yaml:"server"`
	Logger    logger.Config  `yaml:"logger"`
	Stub      stub.Config    `yaml:"stub"`
	Questions []QuestionSeed `yaml:"questions"`
}

var defaultQuestions = []QuestionSeed{
	{
		ExamID:   1,
		Title:    "Project risk response",
		Number:   "Q1",
		Text:     "Describe how you would respond to a schedule risk discovered late in a project.",
		MaxChars: 400,
		Points:   25,
		Keywords: []string{"risk", "stakeholder", "schedule", "quality"},
	},
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file failed: %w", err)
			}
		case os.IsNotExist(err) && path == defaultConfigPath:
		default:
			return nil, fmt.Errorf("read config file failed: %w", err)
		}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Stub.RowDelay == 0 {
		cfg.Stub.RowDelay = 200 * time.Millisecond
	}
	if len(cfg.Questions) == 0 {
		cfg.Questions = defaultQuestions
	}
	return &cfg, nil
}

func (q QuestionSeed) toQuestion() stub.Question {
	return stub.Question{
		Question: model.Question{
			ExamID:   q.ExamID,
			Title:    q.Title,
			Number:   q.Number,
			Text:     q.Text,
			MaxChars: q.MaxChars,
			Points:   q.Points,
		},
		Keywords: q.Keywords,
	}
}
