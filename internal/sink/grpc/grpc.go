// Package grpc streams loaded cells into a running LiteTable server
// instead of writing segment files. The server re-sorts internally, so
// boundary messages on the stream are a no-op for this sink.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/litetable/litetable-bulkload/internal/cell"
	"github.com/litetable/litetable-db/pkg/proto"
	"github.com/rs/zerolog/log"
	grpc2 "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const writeTimeout = 5 * time.Second

// Sink implements the app.Dependency interface for a LiteTable client
// connection.
type Sink struct {
	conn   *grpc2.ClientConn
	client proto.LitetableServiceClient
	target string
}

type Config struct {
	Address string
	Port    int
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Address == "" {
		errGrp = append(errGrp, fmt.Errorf("address required"))
	}
	if c.Port == 0 {
		errGrp = append(errGrp, fmt.Errorf("port required"))
	}
	return errors.Join(errGrp...)
}

// New creates the client connection. gRPC connects lazily, so the server
// only needs to be reachable by the time the first cell is written.
func New(cfg *Config) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	target := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	conn, err := grpc2.NewClient(target, grpc2.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}

	return &Sink{
		conn:   conn,
		client: proto.NewLitetableServiceClient(conn),
		target: target,
	}, nil
}

// Write sends one cell to the server. The server assigns its own write
// timestamp; cell timestamps only order the stream on this side.
func (s *Sink) Write(msg cell.Message) error {
	if msg.Kind == cell.KindBoundary {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	c := msg.Cell
	_, err := s.client.Write(ctx, &proto.WriteRequest{
		Family: string(c.Family),
		RowKey: string(c.RowKey),
		Qualifiers: []*proto.ColumnQualifier{
			{
				Name:  string(c.Qualifier),
				Value: c.Value,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write cell to %s: %w", s.target, err)
	}
	return nil
}

func (s *Sink) Start() error {
	log.Info().Msgf("LiteTable sink targeting %s", s.target)
	return nil
}

func (s *Sink) Stop() error {
	log.Info().Msg("Closing LiteTable sink")
	return s.conn.Close()
}

func (s *Sink) Name() string {
	return "LiteTable gRPC Sink"
}
