package grpcx

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
	"github.com/cwrk-planet/lofi-relay/internal/service"
	"github.com/cwrk-planet/lofi-relay/internal/session"
)

const (
	mdRoomID      = "room-id"
	mdUserID      = "user-id"
	mdUsername    = "username"
	mdUsernameBin = "username-bin"
)

type Server struct {
	ctrl        *session.Controller
	presenceSvc *service.PresenceService
	outboxSize  int
}

var _ RelayServer = (*Server)(nil)

func NewServer(ctrl *session.Controller, presenceSvc *service.PresenceService, outboxSize int) *Server {
	if outboxSize <= 0 {
		outboxSize = 64
	}
	return &Server{
		ctrl:        ctrl,
		presenceSvc: presenceSvc,
		outboxSize:  outboxSize,
	}
}

func Register(grpcServer *grpc.Server, s *Server) {
	RegisterRelayServer(grpcServer, s)
}

func (s *Server) OccupantCount(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	roomID := strings.TrimSpace(in.GetValue())
	if roomID == "" {
		return nil, status.Error(codes.InvalidArgument, "room id is required")
	}
	return wrapperspb.Int64(int64(s.presenceSvc.OccupantCount(roomID))), nil
}

// Connect runs one chat session over the stream until either side hangs up.
func (s *Server) Connect(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error {
	ctx := stream.Context()
	p, err := paramsFromMD(ctx)
	if err != nil {
		return err
	}

	c := newStreamConn(stream, p.UserID, p.Username, s.outboxSize)
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writeLoop()
	}()
	defer func() {
		_ = c.Close()
		<-written
	}()

	return mapErr(s.ctrl.Run(ctx, c, p))
}

// -------- helpers --------

func paramsFromMD(ctx context.Context) (session.Params, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return session.Params{}, status.Error(codes.InvalidArgument, "missing metadata")
	}
	p := session.Params{
		RoomID:   strings.TrimSpace(first(md.Get(mdRoomID))),
		UserID:   strings.TrimSpace(first(md.Get(mdUserID))),
		Username: strings.TrimSpace(first(md.Get(mdUsername))),
	}
	// не-ASCII имена приходят в бинарном заголовке
	if p.Username == "" {
		p.Username = strings.TrimSpace(first(md.Get(mdUsernameBin)))
	}
	switch {
	case p.RoomID == "":
		return p, status.Error(codes.InvalidArgument, "missing "+mdRoomID)
	case p.UserID == "":
		return p, status.Error(codes.InvalidArgument, "missing "+mdUserID)
	case p.Username == "":
		return p, status.Error(codes.InvalidArgument, "missing "+mdUsername)
	}
	return p, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}

	return ss[0]
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
