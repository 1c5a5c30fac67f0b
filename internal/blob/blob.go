// Package blob stores message attachments in an S3-compatible object store.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/acyrxbrown/chat-app/internal/store"
)

const defaultBucket = "chat-files"

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".svg":  true,
}

type Store struct {
	client *minio.Client
	bucket string
	public string // base URL for serving uploaded objects
}

// Upload is the result of a completed attachment upload, shaped to slot
// straight into a message's file fields.
type Upload struct {
	URL         string
	Name        string
	Size        int64
	ContentType string
	MessageType string
}

// New connects to the object store and ensures the attachments bucket
// exists. publicURL is the externally reachable base for object links;
// when empty, links are built from the endpoint itself.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket, publicURL string, useSSL bool) (*Store, error) {
	if bucket == "" {
		bucket = defaultBucket
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: connect %s: %w", endpoint, err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("blob: check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("blob: create bucket %s: %w", bucket, err)
		}
		log.Printf("blob: created bucket %s", bucket)
	}

	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + endpoint
	}
	return &Store{client: client, bucket: bucket, public: strings.TrimRight(publicURL, "/")}, nil
}

// Put uploads an attachment for a message in the given chat and returns the
// fields the message row should carry. Objects are keyed so concurrent
// uploads from the same user cannot collide within a millisecond.
func (s *Store) Put(ctx context.Context, chatID, userID, filename, contentType string, size int64, r io.Reader) (*Upload, error) {
	ext := strings.ToLower(path.Ext(filename))
	key := fmt.Sprintf("chats/%s/%s-%d%s", chatID, userID, time.Now().UnixMilli(), ext)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: put %s: %w", key, err)
	}

	messageType := store.MessageTypeFile
	if imageExtensions[ext] {
		messageType = store.MessageTypeImage
	}
	return &Upload{
		URL:         fmt.Sprintf("%s/%s/%s", s.public, s.bucket, key),
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		MessageType: messageType,
	}, nil
}

// PutGenerated stores AI-generated media under a separate prefix, outside any
// single user's upload namespace.
func (s *Store) PutGenerated(ctx context.Context, chatID, contentType string, data []byte) (string, error) {
	ext := extensionFor(contentType)
	key := fmt.Sprintf("generated/%s/%d%s", chatID, time.Now().UnixMilli(), ext)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("blob: put %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.public, s.bucket, key), nil
}

// Remove deletes the object behind a previously returned URL. Unrecognized
// URLs are ignored so callers can pass any message's file_url through.
func (s *Store) Remove(ctx context.Context, fileURL string) error {
	prefix := s.public + "/" + s.bucket + "/"
	if !strings.HasPrefix(fileURL, prefix) {
		return nil
	}
	key := strings.TrimPrefix(fileURL, prefix)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("blob: remove %s: %w", key, err)
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
