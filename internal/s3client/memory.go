package s3client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// InMemory is an S3 endpoint held entirely in process memory, served on a loopback port.
// Objects are lost when it is closed.
type InMemory struct {
	*Client
	URL    string
	server *http.Server
}

// NewInMemory starts a gofakes3 server on 127.0.0.1 and returns a client bound to bucketName,
// with the bucket already created.
func NewInMemory(ctx context.Context, bucketName string) (*InMemory, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("s3client: failed to listen: %w", err)
	}

	faker := gofakes3.New(s3mem.New())
	srv := &http.Server{
		Handler:           faker.Server(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ln.Close()
		}
	}()
	url := "http://" + ln.Addr().String()

	sdkConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("in-memory", "in-memory", ""),
		),
	)
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(url)
		o.UsePathStyle = true // Required for gofakes3
	})

	client := NewFromS3Client(s3Client, bucketName)
	if err := client.EnsureBucket(ctx); err != nil {
		srv.Close()
		return nil, err
	}

	return &InMemory{Client: client, URL: url, server: srv}, nil
}

// Close stops the server.
func (m *InMemory) Close() error {
	return m.server.Close()
}
