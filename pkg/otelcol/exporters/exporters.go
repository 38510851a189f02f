package exporters

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

const dialTimeout = 10 * time.Second

// New returns an OTLP span exporter for addr. protocol is "grpc" or "http";
// empty means http.
func New(protocol, addr string) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	client, err := newClient(protocol, addr)
	if err != nil {
		return nil, err
	}
	return otlptrace.New(ctx, client)
}

func newClient(protocol, addr string) (otlptrace.Client, error) {
	switch protocol {
	case "grpc":
		return otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithCompressor("gzip"),
			otlptracegrpc.WithEndpoint(addr),
		), nil
	case "http", "":
		return otlptracehttp.NewClient(
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
			otlptracehttp.WithEndpoint(addr),
		), nil
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
