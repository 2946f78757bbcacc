package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"workreport/api/internal/store"
	"workreport/api/internal/util"
)

// MaxUploadBytes matches the transcription endpoint's file limit.
const MaxUploadBytes = 25 << 20

var (
	ErrEmptyUpload    = errors.New("audio upload is empty")
	ErrUploadTooLarge = errors.New("audio upload exceeds 25MB")
	ErrNotAudio       = errors.New("content type must be audio/*")
)

type Store interface {
	CreateAudioFile(ctx context.Context, item store.AudioFile) error
	GetAudioFile(ctx context.Context, owner store.OwnerID, audioID string) (store.AudioFile, error)
	UpdateAudioTranscription(ctx context.Context, owner store.OwnerID, audioID, text string) (bool, error)
}

type Service struct {
	objects     ObjectStore
	transcriber Transcriber
	store       Store
	logger      *zap.Logger
}

func NewService(objects ObjectStore, transcriber Transcriber, files Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{objects: objects, transcriber: transcriber, store: files, logger: logger}
}

// Upload stores a recording and records its metadata.
func (s *Service) Upload(ctx context.Context, owner store.OwnerID, fileName, contentType string, data []byte) (store.AudioFile, error) {
	if len(data) == 0 {
		return store.AudioFile{}, ErrEmptyUpload
	}
	if len(data) > MaxUploadBytes {
		return store.AudioFile{}, ErrUploadTooLarge
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(contentType, "audio/") {
		return store.AudioFile{}, ErrNotAudio
	}

	id := util.NewID("aud")
	item := store.AudioFile{
		ID:          id,
		OwnerID:     owner,
		ObjectKey:   ObjectKey(string(owner), id, fileName),
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.objects.Put(ctx, item.ObjectKey, bytes.NewReader(data), item.SizeBytes, contentType); err != nil {
		return store.AudioFile{}, err
	}
	if err := s.store.CreateAudioFile(ctx, item); err != nil {
		return store.AudioFile{}, err
	}
	s.logger.Info("audio uploaded",
		zap.String("owner_id", string(owner)),
		zap.String("audio_id", id),
		zap.Int64("size", item.SizeBytes),
	)
	return item, nil
}

// Transcribe converts an uploaded recording and stores the text. A recording
// already transcribed returns the stored text.
func (s *Service) Transcribe(ctx context.Context, owner store.OwnerID, audioID string) (string, error) {
	item, err := s.store.GetAudioFile(ctx, owner, audioID)
	if err != nil {
		return "", err
	}
	if item.Transcription != "" {
		return item.Transcription, nil
	}

	body, err := s.objects.Get(ctx, item.ObjectKey)
	if err != nil {
		return "", err
	}
	defer body.Close()

	text, err := s.transcriber.Transcribe(ctx, item.FileName, body)
	if err != nil {
		s.logger.Warn("audio transcription failed", zap.String("audio_id", audioID), zap.Error(err))
		return "", err
	}
	if _, err := s.store.UpdateAudioTranscription(ctx, owner, audioID, text); err != nil {
		return "", fmt.Errorf("save transcription: %w", err)
	}
	return text, nil
}

// URL returns a time-limited download link for an owner's recording.
func (s *Service) URL(ctx context.Context, owner store.OwnerID, audioID string, ttl time.Duration) (string, error) {
	item, err := s.store.GetAudioFile(ctx, owner, audioID)
	if err != nil {
		return "", err
	}
	return s.objects.PresignGet(ctx, item.ObjectKey, ttl)
}
