package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mehashop_back_end/internal/models"
)

func newSigner(t *testing.T) *ImageSigner {
	t.Helper()
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return NewImageSigner(client, "products", 15*time.Minute)
}

func TestSignedURL(t *testing.T) {
	s := newSigner(t)

	u, err := s.SignedURL(context.Background(), "phones/iphone.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/products/phones/iphone.jpg?"))
	assert.Contains(t, u, "X-Amz-Expires=900")
	assert.Contains(t, u, "X-Amz-Signature=")
}

func TestObjectKey(t *testing.T) {
	s := newSigner(t)
	assert.Equal(t, "a/b.png", s.objectKey("http://192.168.1.130:9000/products/a/b.png"))
	assert.Equal(t, "a/b.png", s.objectKey("/a/b.png"))
	assert.Equal(t, "a/b.png", s.objectKey("a/b.png"))
}

func TestSign_NilSignerKeepsProduct(t *testing.T) {
	var s *ImageSigner
	p := models.Product{ImageKey: "x.jpg"}
	s.Sign(context.Background(), &p)
	assert.Empty(t, p.ImageURL)

	assert.Nil(t, NewImageSigner(nil, "products", time.Hour))
}

func TestSign_SetsImageURL(t *testing.T) {
	s := newSigner(t)
	p := models.Product{ImageKey: "x.jpg"}
	s.Sign(context.Background(), &p)
	assert.Contains(t, p.ImageURL, "/products/x.jpg?")

	empty := models.Product{}
	s.Sign(context.Background(), &empty)
	assert.Empty(t, empty.ImageURL)
}
