package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chartsmith/pkg/editor"
	"chartsmith/pkg/events"
	"chartsmith/pkg/llm"
	"chartsmith/pkg/logx"
	"chartsmith/pkg/metrics"
	"chartsmith/pkg/persistence"
	"chartsmith/pkg/plan/classify"
	"chartsmith/pkg/tools"
	"chartsmith/pkg/utils"
)

// MaxToolSteps caps how many steps of the tool-call stream one plan
// run will consume.
const MaxToolSteps = 50

// Executor drives one plan through the applying state: it seeds the
// expected file list, consumes the tool-call stream, applies mutations,
// and settles the plan in applied or review.
type Executor struct {
	ops        *persistence.DatabaseOperations
	backend    editor.FileMutationBackend
	classifier *classify.Classifier
	publisher  events.Publisher
	logger     *logx.Logger
}

// NewExecutor creates an executor. publisher may be nil, which disables
// notifications.
func NewExecutor(ops *persistence.DatabaseOperations, backend editor.FileMutationBackend, classifier *classify.Classifier, publisher events.Publisher) *Executor {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Executor{
		ops:        ops,
		backend:    backend,
		classifier: classifier,
		publisher:  publisher,
		logger:     logx.NewLogger("executor"),
	}
}

// Execute runs the plan against the given tool-call stream. The plan is
// never left in applying: any unrecovered error, including a stream
// abort, forces the review status before the error is returned.
func (e *Executor) Execute(ctx context.Context, planID string, stream llm.ToolCallStream) (err error) {
	p, err := e.ops.GetPlan(planID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", planID, err)
	}

	if err := e.transition(p, persistence.PlanStatusApplying); err != nil {
		return err
	}
	started := time.Now()

	defer func() {
		if err == nil {
			return
		}
		if reviewErr := e.transition(p, persistence.PlanStatusReview); reviewErr != nil {
			e.logger.Error("failed to move plan %s to review: %v", planID, reviewErr)
		}
		metrics.Default().ObservePlanRun(persistence.PlanStatusReview, time.Since(started))
	}()

	// Runs before the review defer above, so a panicking tool path
	// still settles the plan in review instead of leaving it applying.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plan %s execution panicked: %v", planID, r)
		}
	}()

	tracker := NewTracker(e.ops, planID)
	if seedErr := e.seedExpectedFiles(ctx, p, tracker); seedErr != nil {
		err = seedErr
		return err
	}

	provider := tools.NewProvider(tools.WorkspaceContext{
		Backend:     e.backend,
		WorkspaceID: p.WorkspaceID,
	})

	var results []llm.ToolResult
	for step := 0; step < MaxToolSteps; step++ {
		toolStep, streamErr := stream.Next(ctx, results)
		if errors.Is(streamErr, llm.ErrStreamDone) {
			break
		}
		if streamErr != nil {
			err = fmt.Errorf("tool call stream aborted at step %d: %w", step, streamErr)
			return err
		}

		if len(toolStep.ToolCalls) == 0 {
			break
		}

		results = results[:0]
		for i := range toolStep.ToolCalls {
			call := &toolStep.ToolCalls[i]
			metrics.RecordToolCall(call.Name)

			result, callErr := e.handleToolCall(ctx, provider, tracker, p, call)
			if callErr != nil {
				err = fmt.Errorf("tool call %s (%s): %w", call.Name, call.ID, callErr)
				return err
			}
			results = append(results, *result)
		}
	}

	if err = e.transition(p, persistence.PlanStatusApplied); err != nil {
		return err
	}
	metrics.Default().ObservePlanRun(persistence.PlanStatusApplied, time.Since(started))
	e.logger.Info("plan %s applied", planID)
	return nil
}

// seedExpectedFiles derives the expected file list from the plan
// description and registers every path as pending, publishing once so
// the UI can render the full list before any mutation occurs.
func (e *Executor) seedExpectedFiles(ctx context.Context, p *persistence.Plan, tracker *Tracker) error {
	paths := e.classifier.ExpectedFiles(ctx, p.Description)
	for _, path := range paths {
		action := persistence.ActionFileActionCreate
		if _, getErr := e.ops.GetFile(p.WorkspaceID, path); getErr == nil {
			action = persistence.ActionFileActionUpdate
		}
		if seedErr := tracker.Seed(path, action); seedErr != nil {
			return seedErr
		}
	}
	if len(paths) > 0 {
		e.publisher.PublishPlanUpdate(p.WorkspaceID, p.ID)
	}
	return nil
}

// handleToolCall applies one tool invocation. Domain failures are
// relayed to the model as error results; only infrastructure errors
// come back as Go errors and abort the run.
func (e *Executor) handleToolCall(ctx context.Context, provider *tools.ToolProvider, tracker *Tracker, p *persistence.Plan, call *llm.ToolCall) (*llm.ToolResult, error) {
	tool, err := provider.Get(call.Name)
	if err != nil {
		e.logger.Warn("model requested unknown tool %s", call.Name)
		return &llm.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("unknown tool %q", call.Name),
			IsError:    true,
		}, nil
	}

	command := utils.GetMapFieldOr(call.Parameters, "command", "")
	path := utils.GetMapFieldOr(call.Parameters, "path", "")

	mutating := command == "create" || command == "str_replace"
	if path != "" {
		switch {
		case mutating:
			action := persistence.ActionFileActionUpdate
			if command == "create" {
				action = persistence.ActionFileActionCreate
			}
			if err := tracker.Activate(path, action); err != nil {
				return nil, err
			}
			e.publisher.PublishPlanUpdate(p.WorkspaceID, p.ID)
		case command == "view" && tracker.Status(path) != persistence.ActionFileStatusCreated:
			// A view of an unfinished file is a "being examined" signal.
			if err := tracker.Activate(path, persistence.ActionFileActionUpdate); err != nil {
				return nil, err
			}
			e.publisher.PublishPlanUpdate(p.WorkspaceID, p.ID)
		}
	}

	execResult, err := tool.Exec(ctx, call.Parameters)
	if err != nil {
		return nil, err
	}

	succeeded := toolCallSucceeded(execResult)
	if mutating && path != "" && succeeded {
		if err := tracker.Complete(path); err != nil {
			return nil, err
		}
		e.publisher.PublishPlanUpdate(p.WorkspaceID, p.ID)
	}

	return &llm.ToolResult{
		ToolCallID: call.ID,
		Content:    execResult.Content,
		IsError:    !succeeded,
	}, nil
}

// toolCallSucceeded reads the success flag from a tool's JSON result.
func toolCallSucceeded(result *tools.ExecResult) bool {
	var parsed struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(result.Content), &parsed); err != nil {
		return false
	}
	return parsed.Success
}

// transition moves the plan to the given status, validating against the
// state machine, and publishes the update.
func (e *Executor) transition(p *persistence.Plan, to string) error {
	if err := ValidateTransition(p.Status, to); err != nil {
		return err
	}
	if err := e.ops.UpdatePlanStatus(p.ID, to); err != nil {
		return fmt.Errorf("persist plan %s status %s: %w", p.ID, to, err)
	}
	metrics.RecordPlanTransition(p.Status, to)
	e.logger.Info("plan %s: %s -> %s", p.ID, p.Status, to)
	p.Status = to
	e.publisher.PublishPlanUpdate(p.WorkspaceID, p.ID)
	return nil
}
