// Package services regroupe les intégrations de stockage objet.
package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"mehashop_back_end/internal/models"
)

// ImageSigner produit des URL signées temporaires pour les images produit stockées dans MinIO.
type ImageSigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewImageSigner renvoie nil si client est nil ; un signer nil ne signe rien.
func NewImageSigner(client *minio.Client, bucket string, expiry time.Duration) *ImageSigner {
	if client == nil {
		return nil
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &ImageSigner{client: client, bucket: bucket, expiry: expiry}
}

// SignedURL signe la clé objet. Une URL complète pointant vers le bucket est ramenée à sa clé.
func (s *ImageSigner) SignedURL(ctx context.Context, objectKey string) (string, error) {
	key := s.objectKey(objectKey)
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *ImageSigner) objectKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "/"+s.bucket+"/"); i >= 0 && strings.Contains(raw[:i], "://") {
		raw = raw[i+len(s.bucket)+2:]
	}
	return strings.TrimPrefix(raw, "/")
}

// Sign renseigne ImageURL quand le produit a une image. Sans MinIO, le produit est renvoyé tel quel.
func (s *ImageSigner) Sign(ctx context.Context, p *models.Product) {
	if s == nil || p.ImageKey == "" {
		return
	}
	signed, err := s.SignedURL(ctx, p.ImageKey)
	if err != nil {
		log.Printf("⚠️ URL signée impossible pour %s: %v", p.ImageKey, err)
		return
	}
	p.ImageURL = signed
}
