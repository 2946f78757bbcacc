package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateAudioFile(ctx context.Context, item AudioFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_files (id, owner_id, object_key, file_name, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, string(item.OwnerID), item.ObjectKey, item.FileName, item.ContentType, item.SizeBytes)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAudioFile(ctx context.Context, owner OwnerID, audioID string) (AudioFile, error) {
	var item AudioFile
	var ownerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, object_key, file_name, content_type, size_bytes, transcription, created_at
		FROM audio_files
		WHERE id=$1 AND owner_id=$2
	`, audioID, string(owner)).Scan(&item.ID, &ownerID, &item.ObjectKey, &item.FileName, &item.ContentType, &item.SizeBytes, &item.Transcription, &item.CreatedAt)
	if err != nil {
		return AudioFile{}, notFound(err)
	}
	item.OwnerID = OwnerID(ownerID)
	return item, nil
}

func (s *PostgresStore) UpdateAudioTranscription(ctx context.Context, owner OwnerID, audioID, text string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE audio_files SET transcription=$3
		WHERE id=$1 AND owner_id=$2
	`, audioID, string(owner), text)
	if err != nil {
		return false, fmt.Errorf("update audio transcription: %w", err)
	}
	return affected(result, "update audio transcription")
}
