package app

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"workreport/api/internal/audio"
	"workreport/api/internal/store"
)

const audioURLTTL = 15 * time.Minute

// AudioUpload is a recording sent as base64 in a JSON body.
type AudioUpload struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        string `json:"data"`
}

func (s *Service) UploadAudio(ctx context.Context, owner store.OwnerID, in AudioUpload) (store.AudioFile, error) {
	if s.audio == nil {
		return store.AudioFile{}, unavailableError("Audio")
	}
	raw := strings.TrimSpace(in.Data)
	// Accept data URLs as produced by browser recorders.
	if idx := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && idx > 0 {
		if in.ContentType == "" {
			in.ContentType = raw[len("data:"):idx]
		}
		raw = raw[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return store.AudioFile{}, validationError("data must be base64")
	}
	item, err := s.audio.Upload(ctx, owner, strings.TrimSpace(in.FileName), in.ContentType, data)
	if err != nil {
		return store.AudioFile{}, audioError(err)
	}
	return item, nil
}

// TranscribeAudio returns the recording's text, transcribing it on first use.
func (s *Service) TranscribeAudio(ctx context.Context, owner store.OwnerID, audioID string) (string, error) {
	if s.audio == nil {
		return "", unavailableError("Audio")
	}
	text, err := s.audio.Transcribe(ctx, owner, audioID)
	if err != nil {
		return "", audioError(err)
	}
	return text, nil
}

func (s *Service) AudioURL(ctx context.Context, owner store.OwnerID, audioID string) (string, error) {
	if s.audio == nil {
		return "", unavailableError("Audio")
	}
	url, err := s.audio.URL(ctx, owner, audioID, audioURLTTL)
	if err != nil {
		return "", audioError(err)
	}
	return url, nil
}

func audioError(err error) error {
	switch {
	case errors.Is(err, audio.ErrEmptyUpload), errors.Is(err, audio.ErrNotAudio):
		return validationError(err.Error())
	case errors.Is(err, audio.ErrUploadTooLarge):
		return domainError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error(), nil)
	case errors.Is(err, audio.ErrTranscriberNotConfigured):
		return unavailableError("Transcription")
	case errors.Is(err, store.ErrNotFound):
		return notFoundError()
	}
	return err
}
