// haven is a voice-first therapy chat backend: clients upload spoken
// messages, the server transcribes them, generates a supportive reply
// and answers with synthesized speech.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/havenmind/haven/internal/auth"
	"github.com/havenmind/haven/internal/config"
	"github.com/havenmind/haven/internal/log"
	"github.com/havenmind/haven/internal/mail"
	"github.com/havenmind/haven/internal/store"
	"github.com/havenmind/haven/internal/web"
	"github.com/havenmind/haven/pkg/chat"
	"github.com/havenmind/haven/pkg/inference"
	"github.com/havenmind/haven/pkg/transcribe"
	"github.com/havenmind/haven/pkg/tts"
	"github.com/havenmind/haven/pkg/voice"
)

func main() {
	cfg := config.FromEnv()
	log.Init(cfg.LogLevel)
	logger := log.L()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	stt, err := transcribe.NewOpenAI(
		transcribe.WithAPIKey(cfg.OpenAIKey),
		transcribe.WithBaseURL(cfg.OpenAIBaseURL),
		transcribe.WithModel(cfg.TranscribeModel),
		transcribe.WithTimeout(cfg.CallTimeout),
	)
	if err != nil {
		logger.Error("failed to create transcription client", "error", err)
		os.Exit(1)
	}
	defer stt.Close()

	llm, err := inference.NewClient(
		inference.WithAPIKey(cfg.OpenAIKey),
		inference.WithBaseURL(cfg.OpenAIBaseURL),
		inference.WithModel(cfg.ChatModel),
		inference.WithTimeout(cfg.CallTimeout),
	)
	if err != nil {
		logger.Error("failed to create inference client", "error", err)
		os.Exit(1)
	}
	defer llm.Close()

	speech, err := tts.NewOpenAI(
		tts.WithAPIKey(cfg.OpenAIKey),
		tts.WithBaseURL(cfg.OpenAIBaseURL),
		tts.WithModel(cfg.SpeechModel),
		tts.WithVoice(cfg.SpeechVoice),
		tts.WithTimeout(cfg.CallTimeout),
	)
	if err != nil {
		logger.Error("failed to create speech client", "error", err)
		os.Exit(1)
	}
	defer speech.Close()

	responder := chat.NewResponder(llm, st)
	pipeline := voice.NewPipeline(
		voice.NewIngestor(cfg.MediaDir, voice.WithMinBytes(cfg.MinAudioBytes)),
		stt,
		st,
		responder,
		voice.NewSpeaker(speech, cfg.MediaDir, cfg.MediaPrefix, voice.WithAttempts(cfg.SpeakAttempts)),
	)

	var mailer mail.Sender = mail.Disabled{}
	if cfg.MailAPIKey != "" {
		mailer, err = mail.NewClient(cfg.MailAPIKey, cfg.MailFrom, mail.WithBaseURL(cfg.MailBaseURL))
		if err != nil {
			logger.Error("failed to create mail client", "error", err)
			os.Exit(1)
		}
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	server := web.NewServer(cfg, st, tokens, pipeline, responder, mailer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}
}
