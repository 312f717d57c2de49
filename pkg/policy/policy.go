package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// ErrInvalidPolicy is returned when policy files cannot be loaded or compiled
var ErrInvalidPolicy = goerr.New("invalid next action policy")

// Query is the rule every policy must define. It evaluates to an array (or
// set) of action objects.
const Query = "data.next_actions.actions"

// printHook forwards Rego print() output to the debug log
type printHook struct{}

func (h *printHook) Print(ctx print.Context, message string) error {
	logging.Default().Debug("rego print", "message", message)
	return nil
}

// NextActions derives pending actions with a Rego policy. The input document
// is {"score": <qualification score>, "state": <AgentState as JSON>}.
type NextActions struct {
	query *rego.PreparedEvalQuery
}

// Load reads a single .rego file, or every .rego file in a directory, and
// prepares the next action query.
func Load(ctx context.Context, path string) (*NextActions, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stat policy path", goerr.V("path", path))
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.rego"))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("path", path))
		}
		if len(files) == 0 {
			return nil, goerr.Wrap(ErrInvalidPolicy, "no .rego files found", goerr.V("path", path))
		}
	}

	modules := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules[file] = string(data)
	}

	return New(ctx, modules)
}

// New prepares the query from in-memory modules keyed by file name
func New(ctx context.Context, modules map[string]string) (*NextActions, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+2)
	options = append(options, rego.Query(Query), rego.EnablePrintStatements(true))
	for name, src := range modules {
		options = append(options, rego.Module(name, src))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidPolicy, "failed to prepare query",
			goerr.V("query", Query),
			goerr.V("cause", err.Error()))
	}

	return &NextActions{query: &prepared}, nil
}

// policyAction is the object shape a policy returns
type policyAction struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	ActionID string         `json:"action_id"`
	CRMData  *model.CRMData `json:"crm_data"`
}

// NextActions implements agent.NextActionPolicy. Evaluation never fails from
// the caller's view: errors are logged and no actions are returned.
func (p *NextActions) NextActions(state *model.AgentState, score float64) []model.PendingAction {
	ctx := context.Background()
	actions, err := p.Eval(ctx, state, score)
	if err != nil {
		logging.From(ctx).Warn("next action policy failed", logging.ErrAttr(err))
		return nil
	}
	return actions
}

// Eval evaluates the policy and returns its actions in policy order. Entries
// without an id get "<type>-<index>".
func (p *NextActions) Eval(ctx context.Context, state *model.AgentState, score float64) ([]model.PendingAction, error) {
	stateDoc, err := toDocument(state)
	if err != nil {
		return nil, err
	}
	input := map[string]any{
		"score": score,
		"state": stateDoc,
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&printHook{}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate next action policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	items, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, goerr.New("next actions must be an array or set",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	result := make([]model.PendingAction, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode policy output", goerr.V("index", i))
		}
		var pa policyAction
		if err := json.Unmarshal(raw, &pa); err != nil {
			return nil, goerr.Wrap(err, "invalid action object", goerr.V("index", i), goerr.V("value", string(raw)))
		}
		if pa.Type == "" {
			return nil, goerr.New("action type is required", goerr.V("index", i))
		}

		id := pa.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", pa.Type, i)
		}
		result = append(result, model.PendingAction{
			ID: model.ActionID(id),
			Action: model.ActionRecord{
				Type:     model.ActionType(pa.Type),
				Content:  pa.Content,
				Score:    pa.Score,
				ActionID: model.ActionID(pa.ActionID),
				CRMData:  pa.CRMData,
			},
		})
	}

	return result, nil
}

func toDocument(state *model.AgentState) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode state for policy")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode state for policy")
	}
	return doc, nil
}
