package grpcclient

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/resilience"
	"github.com/GriffinCanCode/screen-translator/internal/textdetect"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

type Options struct {
	Language    string        // OCR language hint, e.g. "eng"
	Timeout     time.Duration // per call; DefaultRecognizeTimeout when zero
	Retries     int           // retries for transient failures
	DialOptions []grpc.DialOption
}

// Client is a textdetect.Recognizer backed by a remote OCR service.
type Client struct {
	conn    *grpc.ClientConn
	health  grpc_health_v1.HealthClient
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	opts    Options
	healthy atomic.Bool
}

// New creates a client. The connection is established lazily.
func New(addr string, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRecognizeTimeout
	}

	dial := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(dial, opts.DialOptions...)...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "dial ocr service")
	}

	c := &Client{
		conn:    conn,
		health:  grpc_health_v1.NewHealthClient(conn),
		breaker: resilience.New(resilience.RecognitionConfig()),
		retry:   resilience.RecognitionRetryConfig(opts.Retries),
		opts:    opts,
	}
	c.healthy.Store(true)
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Breaker exposes the circuit breaker for status hooks.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Recognize sends f to the OCR service.
func (c *Client) Recognize(ctx context.Context, f *capture.Frame) ([]textdetect.Region, error) {
	data, err := encodeFrame(f.Image)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "encode frame")
	}
	if c.opts.Language != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, LanguageKey, c.opts.Language)
	}
	req := wrapperspb.Bytes(data)

	regions, err := resilience.ExecuteWithResult(c.breaker, func() ([]textdetect.Region, error) {
		return resilience.RetryWithResult(ctx, c.retry, func() ([]textdetect.Region, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()

			out := new(structpb.ListValue)
			if err := c.conn.Invoke(callCtx, MethodRecognize, req, out); err != nil {
				return nil, err
			}
			return decodeRegions(out)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		appErr := apperrors.FromGRPCError(err)
		return nil, apperrors.Wrap(appErr, apperrors.DetectionFailed, "remote recognize").
			WithMetadata("frame", f.TraceID)
	}
	return regions, nil
}

// Check asks the service's health endpoint whether OCR is serving.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.Unavailable, "ocr service %s", resp.GetStatus())
	}
	return nil
}

// Healthy reports the result of the last health probe.
func (c *Client) Healthy() bool { return c.healthy.Load() }

// MonitorHealth probes the service until ctx ends, logging transitions.
func (c *Client) MonitorHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := c.Check(ctx)
		if ok := err == nil; c.healthy.Swap(ok) != ok {
			if ok {
				slog.Info("ocr service healthy")
			} else {
				slog.Warn("ocr service unhealthy", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
