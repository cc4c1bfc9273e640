package batchbackend

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/pkg/errors"
)

// batchSubmissionClient is the client stub for the BatchSubmission RPC
// service a slurm/pbs/flux-fronting sidecar implements. It follows the
// shape protoc-gen-go-grpc emits (proto/endpointupdater/endpoint_grpc.pb.go
// in the teacher repo): one thin method per RPC, each forwarding straight
// to ClientConnInterface.Invoke. Request/response payloads use the
// well-known structpb/wrapperspb/emptypb types rather than a bespoke
// generated message package, so the wire contract stays self-describing
// without a protoc build step.
type batchSubmissionClient struct {
	cc grpc.ClientConnInterface
}

func newBatchSubmissionClient(cc grpc.ClientConnInterface) *batchSubmissionClient {
	return &batchSubmissionClient{cc: cc}
}

func (c *batchSubmissionClient) submit(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/canary.BatchSubmission/Submit", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *batchSubmissionClient) poll(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/canary.BatchSubmission/Poll", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *batchSubmissionClient) cancel(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/canary.BatchSubmission/Cancel", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *batchSubmissionClient) logs(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/canary.BatchSubmission/Logs", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCBackend fronts a slurm/pbs/flux workload manager through a
// BatchSubmission gRPC service (spec.md §4.8). The backend process itself
// (the thing translating Submit/Poll/Cancel into `sbatch`/`qsub`/`flux
// batch` invocations) lives outside this module; GRPCBackend is the client
// side of that contract.
type GRPCBackend struct {
	Target string
	// DialOptions are passed through to grpc.DialContext, e.g.
	// grpc.WithTransportCredentials(insecure.NewCredentials()) for a
	// same-host sidecar.
	DialOptions []grpc.DialOption

	conn   *grpc.ClientConn
	client *batchSubmissionClient
}

// Dial establishes the connection to the BatchSubmission service.
func (b *GRPCBackend) Dial(ctx context.Context) error {
	conn, err := grpc.DialContext(ctx, b.Target, b.DialOptions...)
	if err != nil {
		return errors.Wrapf(err, "dialing batch submission service at %s", b.Target)
	}
	b.conn = conn
	b.client = newBatchSubmissionClient(conn)
	return nil
}

// Close tears down the connection opened by Dial.
func (b *GRPCBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func (b *GRPCBackend) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	payload, err := structpb.NewStruct(map[string]interface{}{
		"batch_id":   req.Batch.ID,
		"case_ids":   toAnySlice(req.Batch.CaseIDs),
		"node_count": req.NodeCount,
		"extra_args": toAnySlice(req.ExtraArgs),
	})
	if err != nil {
		return Handle{}, errors.Wrap(err, "encoding submit request")
	}
	token, err := b.client.submit(ctx, payload)
	if err != nil {
		return Handle{}, errors.Wrapf(err, "submitting batch %s", req.Batch.ID)
	}
	return Handle{BatchID: req.Batch.ID, Token: token.GetValue()}, nil
}

func (b *GRPCBackend) Poll(ctx context.Context, h Handle) (PollResult, error) {
	out, err := b.client.poll(ctx, wrapperspb.String(h.Token))
	if err != nil {
		return PollResult{}, errors.Wrapf(err, "polling batch %s", h.BatchID)
	}
	fields := out.GetFields()
	state := State(fields["state"].GetStringValue())
	if state == "" {
		return PollResult{}, fmt.Errorf("batchbackend: grpc backend returned no state for %s", h.BatchID)
	}
	return PollResult{State: state, Reason: fields["reason"].GetStringValue()}, nil
}

func (b *GRPCBackend) Cancel(ctx context.Context, h Handle) error {
	_, err := b.client.cancel(ctx, wrapperspb.String(h.Token))
	if err != nil {
		return errors.Wrapf(err, "cancelling batch %s", h.BatchID)
	}
	return nil
}

func (b *GRPCBackend) Logs(ctx context.Context, h Handle) (string, error) {
	out, err := b.client.logs(ctx, wrapperspb.String(h.Token))
	if err != nil {
		return "", errors.Wrapf(err, "fetching logs for batch %s", h.BatchID)
	}
	return out.GetValue(), nil
}

func toAnySlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
