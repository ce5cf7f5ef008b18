package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/identra/be-hr-workflows/internal/api/workflowsv1"
	"github.com/identra/be-hr-workflows/internal/common/auth"
	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/service"
)

// GRPCHandler implements the WorkflowService gRPC interface
type GRPCHandler struct {
	pb.UnimplementedWorkflowServiceServer
	workflows *service.WorkflowService
	templates *service.TemplateService
	logger    zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(workflows *service.WorkflowService, templates *service.TemplateService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		workflows: workflows,
		templates: templates,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

type workflowRef struct {
	WorkflowID int64 `json:"workflow_id"`
}

type requestRef struct {
	RequestID int64 `json:"request_id"`
}

type addStepMessage struct {
	WorkflowID int64 `json:"workflow_id"`
	service.StepInput
}

type reorderMessage struct {
	WorkflowID int64               `json:"workflow_id"`
	Steps      []service.StepInput `json:"steps"`
}

type decisionMessage struct {
	InstanceID int64  `json:"instance_id"`
	Action     string `json:"action"`
	Remarks    string `json:"remarks"`
}

type cancelMessage struct {
	RequestID int64  `json:"request_id"`
	Remarks   string `json:"remarks"`
}

// CreateTemplate creates a workflow template
func (h *GRPCHandler) CreateTemplate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in service.CreateTemplateInput
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	h.logger.Info().Str("workflow_code", in.Code).Int("steps", len(in.Steps)).Msg("gRPC CreateTemplate called")

	tmpl, err := h.templates.CreateTemplate(ctx, in)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create template")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(tmpl)
}

// GetTemplate retrieves a template by workflow_id
func (h *GRPCHandler) GetTemplate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in workflowRef
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	h.logger.Info().Int64("workflow_id", in.WorkflowID).Msg("gRPC GetTemplate called")

	tmpl, err := h.templates.GetTemplate(ctx, in.WorkflowID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get template")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(tmpl)
}

// AddStep inserts a step into a template
func (h *GRPCHandler) AddStep(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in addStepMessage
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	h.logger.Info().
		Int64("workflow_id", in.WorkflowID).
		Int("step_order", in.StepOrder).
		Msg("gRPC AddStep called")

	tmpl, err := h.templates.AddStep(ctx, in.WorkflowID, in.StepInput)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to add step")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(tmpl)
}

// ReorderSteps replaces a template's steps
func (h *GRPCHandler) ReorderSteps(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in reorderMessage
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	h.logger.Info().Int64("workflow_id", in.WorkflowID).Int("steps", len(in.Steps)).Msg("gRPC ReorderSteps called")

	tmpl, err := h.templates.ReorderSteps(ctx, in.WorkflowID, in.Steps)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to reorder steps")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(tmpl)
}

// InitiateWorkflow starts an approval request. requestor_id defaults to the
// caller; only peer services may name someone else.
func (h *GRPCHandler) InitiateWorkflow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in service.InitiateInput
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	requestorID, err := auth.ActingFor(ctx, in.RequestorID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	if caller := auth.EmployeeID(ctx); requestorID != caller {
		h.logger.Info().
			Int64("caller_id", caller).
			Int64("requestor_id", requestorID).
			Msg("Initiating workflow on behalf of employee")
	}
	in.RequestorID = requestorID
	h.logger.Info().
		Int64("workflow_id", in.WorkflowID).
		Str("transaction_id", in.TransactionID).
		Int64("requestor_id", in.RequestorID).
		Msg("gRPC InitiateWorkflow called")

	view, err := h.workflows.Initiate(ctx, in)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to initiate workflow")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(view)
}

// ProcessDecision records the caller's decision on a step instance
func (h *GRPCHandler) ProcessDecision(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	var in decisionMessage
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	h.logger.Info().
		Int64("instance_id", in.InstanceID).
		Int64("actor_id", caller.EmployeeID).
		Str("action", in.Action).
		Msg("gRPC ProcessDecision called")

	view, err := h.workflows.Decide(ctx, service.DecisionInput{
		InstanceID: in.InstanceID,
		ActorID:    caller.EmployeeID,
		Action:     in.Action,
		Remarks:    in.Remarks,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to process decision")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(view)
}

// CancelRequest withdraws the caller's pending request
func (h *GRPCHandler) CancelRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	var in cancelMessage
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	h.logger.Info().Int64("request_id", in.RequestID).Int64("actor_id", caller.EmployeeID).Msg("gRPC CancelRequest called")

	view, err := h.workflows.Cancel(ctx, service.CancelInput{
		RequestID: in.RequestID,
		ActorID:   caller.EmployeeID,
		Remarks:   in.Remarks,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to cancel request")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(view)
}

// GetRequestStatus returns a request with its instances
func (h *GRPCHandler) GetRequestStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in requestRef
	if err := pb.Decode(req, &in); err != nil {
		return nil, h.badRequest(err)
	}
	h.logger.Info().Int64("request_id", in.RequestID).Msg("gRPC GetRequestStatus called")

	view, err := h.workflows.GetRequestStatus(ctx, in.RequestID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get request status")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(view)
}

// ListPendingApprovals returns the caller's inbox
func (h *GRPCHandler) ListPendingApprovals(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caller, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	h.logger.Info().Int64("approver_id", caller.EmployeeID).Msg("gRPC ListPendingApprovals called")

	pending, err := h.workflows.ListPendingForApprover(ctx, caller.EmployeeID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pending approvals")
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(map[string]any{"approvals": pending, "total": len(pending)})
}

func (h *GRPCHandler) reply(v any) (*structpb.Struct, error) {
	out, err := pb.Encode(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
		return nil, mapErrorToGRPC(errors.Wrap(err, errors.ErrCodeInternal, "encode response"))
	}
	return out, nil
}

func (h *GRPCHandler) badRequest(err error) error {
	return mapErrorToGRPC(errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed request message"))
}
