package gcp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// Cloud Speech rejects inline audio content above 10 MB.
const (
	InlineAudioMaxMB    = 10
	InlineAudioMaxBytes = InlineAudioMaxMB * 1024 * 1024
)

type SpeechConfig struct {
	LanguageCode    string
	Model           string
	SampleRateHertz int
	Timeout         time.Duration

	// Staging receives segments too large to send inline; they are
	// recognised by gs:// URI and deleted afterwards. Nil allows inline only.
	Staging BucketService
}

// SpeechClient transcribes exported segment files with Cloud Speech-to-Text.
// One call is one LongRunningRecognize operation; retries belong to the caller.
type SpeechClient interface {
	Transcribe(ctx context.Context, filePath string, model string) (string, error)
	Close() error
}

type speechClient struct {
	log    *logger.Logger
	client *speech.Client
	cfg    SpeechConfig
}

func NewSpeechClient(ctx context.Context, log *logger.Logger, cfg SpeechConfig) (SpeechClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "fr-FR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechClient{log: log.With("service", "SpeechClient"), client: c, cfg: cfg}, nil
}

func (s *speechClient) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechClient) Transcribe(ctx context.Context, filePath string, model string) (string, error) {
	audio, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	recAudio, staged, err := stageRecognitionAudio(ctx, filePath, audio, s.cfg.Staging)
	if err != nil {
		return "", err
	}
	if staged != "" {
		defer func() {
			if err := s.cfg.Staging.Delete(context.WithoutCancel(ctx), staged); err != nil {
				s.log.Warn("delete staged audio failed", "key", staged, "error", err)
			}
		}()
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig(filePath, model, s.cfg),
		Audio:  recAudio,
	}
	op, err := s.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("speech longrunningrecognize wait: %w", err)
	}
	return joinResults(resp), nil
}

// stageRecognitionAudio sends small files inline and uploads larger ones to
// the staging bucket. staged is the uploaded object key, or "".
func stageRecognitionAudio(ctx context.Context, filePath string, audio []byte, staging BucketService) (ra *speechpb.RecognitionAudio, staged string, err error) {
	if len(audio) <= InlineAudioMaxBytes {
		return &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}}, "", nil
	}
	if staging == nil {
		return nil, "", apierr.Validation(fmt.Sprintf(
			"audio %s is %d bytes, above the %d MB inline limit of Cloud Speech; configure a staging bucket",
			filePath, len(audio), InlineAudioMaxMB))
	}
	key := "speech-staging/" + uuid.NewString() + strings.ToLower(filepath.Ext(filePath))
	if err := staging.UploadFile(ctx, key, bytes.NewReader(audio)); err != nil {
		return nil, "", fmt.Errorf("stage audio: %w", err)
	}
	return &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Uri{Uri: staging.URI(key)}}, key, nil
}

func buildRecognitionConfig(filePath, model string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		EnableAutomaticPunctuation: true,
		Encoding:                   inferSpeechEncoding(filePath),
	}
	// The pipeline-level model name targets OpenAI by default; only pass through
	// names that Speech-to-Text would recognise.
	if m := strings.TrimSpace(model); m != "" && !strings.HasPrefix(m, "whisper") && !strings.HasPrefix(m, "gpt") {
		rc.Model = m
	}
	if cfg.SampleRateHertz > 0 {
		rc.SampleRateHertz = int32(cfg.SampleRateHertz)
	}
	return rc
}

func inferSpeechEncoding(path string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func joinResults(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil {
		return ""
	}
	parts := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// IsRetryableCode reports whether a gRPC failure is worth another attempt.
func IsRetryableCode(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return true
	default:
		return false
	}
}
