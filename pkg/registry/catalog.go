package registry

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/ports"
)

// Deps are the collaborators behind the builtin node kinds. Nil members are
// tolerated; kinds backed by a missing collaborator fail at invocation time
// with a configuration error.
type Deps struct {
	Model  ports.ModelClient
	Memory ports.MemoryStore
	Skills ports.SkillRunner
	Logger *zap.Logger
}

// RegisterBuiltins registers the engine-facing node catalog: entry and
// terminal kinds, control-flow constructs, and the collaborator-backed
// model, memory, and skill kinds.
func RegisterBuiltins(r *Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	kinds := []struct {
		desc domain.NodeTypeDescriptor
		fn   ExecFunc
	}{
		{chatInputDesc(), execChatInput},
		{modeInputDesc(), execModeInput},
		{responseOutputDesc(), execTerminal},
		{speechOutputDesc(), execTerminal},
		{loopControllerDesc(), execLoopController},
		{ifConditionDesc(), execIfCondition},
		{modeRouterDesc(), execModeRouter},
		{modelGenerateDesc(), execModelGenerate(deps.Model)},
		{extractTextDesc(), execExtractText},
		{memorySearchDesc(), execMemorySearch(deps.Memory)},
		{memoryStoreDesc(), execMemoryStore(deps.Memory)},
		{skillInvokeDesc(), execSkillInvoke(deps.Skills)},
		{templateDesc(), execTemplate},
		{mergeDesc(), execMerge},
	}

	for _, k := range kinds {
		if err := r.Register(k.desc, k.fn); err != nil {
			return fmt.Errorf("register builtin: %w", err)
		}
	}

	deps.Logger.Info("builtin node catalog registered",
		zap.Int("kinds", len(kinds)))
	return nil
}

// --- entry kinds ---

func chatInputDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "input/chat",
		Category: domain.CategoryInput,
		Outputs: []domain.PortSpec{
			{Name: "message", Type: domain.TypeMessage},
			{Name: "context", Type: domain.TypeContext, Optional: true},
		},
	}
}

// execChatInput surfaces the caller-supplied message and context from the
// shared run context; the engine never loads persona or user data itself.
func execChatInput(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	msg, ok := req.Context.Get("message")
	if !ok {
		msg = req.Properties["default_message"]
	}
	out := map[string]interface{}{"message": msg}
	if c, ok := req.Context.Get("context"); ok {
		out["context"] = c
	}
	return out, nil
}

func modeInputDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "input/mode",
		Category: domain.CategoryInput,
		Outputs: []domain.PortSpec{
			{Name: "mode", Type: domain.TypeMode},
		},
		DefaultProperties: map[string]interface{}{"mode": "chat"},
	}
}

func execModeInput(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	mode := req.Context.GetString("mode", req.StringProperty("mode", "chat"))
	return map[string]interface{}{"mode": mode}, nil
}

// --- terminal kinds ---

func responseOutputDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "output/response",
		Category: domain.CategoryOutput,
		Inputs: []domain.PortSpec{
			{Name: "response", Type: domain.TypeWildcard},
		},
	}
}

func speechOutputDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "output/speech",
		Category: domain.CategoryOutput,
		Inputs: []domain.PortSpec{
			{Name: "text", Type: domain.TypeString},
		},
	}
}

// execTerminal passes the sole input through as the run's final result.
func execTerminal(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	for _, v := range req.Inputs {
		return map[string]interface{}{"result": v}, nil
	}
	return map[string]interface{}{"result": nil}, nil
}

// --- control flow ---

func loopControllerDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "control/loop",
		Category: domain.CategoryControl,
		Inputs: []domain.PortSpec{
			{Name: "value", Type: domain.TypeWildcard},
			{Name: "complete", Type: domain.TypeBoolean, Optional: true},
		},
		Outputs: []domain.PortSpec{
			{Name: "loop", Type: domain.TypeWildcard},
			{Name: "exit", Type: domain.TypeWildcard},
		},
		DefaultProperties: map[string]interface{}{"maxIterations": 10},
	}
}

// execLoopController routes its value back around the loop until the
// completion check reports done. The iteration bound itself is enforced by
// the executor, which forces the exit slot once the looped node's counter
// reaches maxIterations.
func execLoopController(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	value := req.Inputs["value"]
	if done, _ := req.Inputs["complete"].(bool); done {
		return map[string]interface{}{"exit": value}, nil
	}
	return map[string]interface{}{"loop": value}, nil
}

func ifConditionDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "condition/if",
		Category: domain.CategoryCondition,
		Inputs: []domain.PortSpec{
			{Name: "condition", Type: domain.TypeBoolean},
			{Name: "value", Type: domain.TypeWildcard, Optional: true},
		},
		Outputs: []domain.PortSpec{
			{Name: "true", Type: domain.TypeWildcard},
			{Name: "false", Type: domain.TypeWildcard},
		},
	}
}

// execIfCondition takes exactly one branch output per invocation. The
// untaken branch's subgraph is simply never scheduled.
func execIfCondition(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	value, ok := req.Inputs["value"]
	if !ok {
		value = true
	}
	if cond, _ := req.Inputs["condition"].(bool); cond {
		return map[string]interface{}{"true": value}, nil
	}
	return map[string]interface{}{"false": value}, nil
}

func modeRouterDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "condition/mode",
		Category: domain.CategoryCondition,
		Inputs: []domain.PortSpec{
			{Name: "mode", Type: domain.TypeMode},
		},
		Outputs: []domain.PortSpec{
			{Name: "chat", Type: domain.TypeMode},
			{Name: "task", Type: domain.TypeMode},
			{Name: "reflect", Type: domain.TypeMode},
		},
	}
}

func execModeRouter(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	mode := req.StringInput("mode", "chat")
	switch mode {
	case "task", "reflect":
		return map[string]interface{}{mode: mode}, nil
	default:
		return map[string]interface{}{"chat": mode}, nil
	}
}

// --- collaborator-backed kinds ---

func modelGenerateDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "model/generate",
		Category: domain.CategoryModel,
		Inputs: []domain.PortSpec{
			{Name: "prompt", Type: domain.TypeMessage},
			{Name: "context", Type: domain.TypeContext, Optional: true},
			{Name: "memory", Type: domain.TypeMemory, Optional: true},
		},
		Outputs: []domain.PortSpec{
			{Name: "response", Type: domain.TypeModelResponse},
		},
		DefaultProperties: map[string]interface{}{
			"temperature": 0.7,
			"max_tokens":  4096,
		},
	}
}

func execModelGenerate(client ports.ModelClient) ExecFunc {
	return func(ctx context.Context, req ExecRequest) (map[string]interface{}, error) {
		if client == nil {
			return nil, fmt.Errorf("model client not configured")
		}

		prompt := fmt.Sprintf("%v", req.Inputs["prompt"])
		mreq := &ports.ModelRequest{
			Model:       req.StringProperty("model", ""),
			System:      req.StringProperty("system", ""),
			Temperature: floatProperty(req.Properties, "temperature", 0.7),
			MaxTokens:   intProperty(req.Properties, "max_tokens", 4096),
			Messages:    []ports.Message{{Role: "user", Content: prompt}},
		}
		if c, ok := req.Inputs["context"]; ok && c != nil {
			mreq.Messages = append([]ports.Message{
				{Role: "user", Content: fmt.Sprintf("Context:\n%v", c)},
			}, mreq.Messages...)
		}

		resp, err := client.Complete(ctx, mreq)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"response": resp}, nil
	}
}

func extractTextDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "transform/extract_text",
		Category: domain.CategoryTransform,
		Inputs: []domain.PortSpec{
			{Name: "response", Type: domain.TypeModelResponse},
		},
		Outputs: []domain.PortSpec{
			{Name: "text", Type: domain.TypeString},
		},
	}
}

func execExtractText(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	switch v := req.Inputs["response"].(type) {
	case *ports.ModelResponse:
		return map[string]interface{}{"text": v.Content}, nil
	case string:
		return map[string]interface{}{"text": v}, nil
	default:
		return map[string]interface{}{"text": fmt.Sprintf("%v", v)}, nil
	}
}

func memorySearchDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "memory/search",
		Category: domain.CategoryMemory,
		Inputs: []domain.PortSpec{
			{Name: "query", Type: domain.TypeString},
		},
		Outputs: []domain.PortSpec{
			{Name: "results", Type: domain.TypeMemory},
		},
		DefaultProperties: map[string]interface{}{"limit": 5},
	}
}

func execMemorySearch(store ports.MemoryStore) ExecFunc {
	return func(ctx context.Context, req ExecRequest) (map[string]interface{}, error) {
		if store == nil {
			return nil, fmt.Errorf("memory store not configured")
		}
		hits, err := store.Search(ctx, req.StringInput("query", ""), intProperty(req.Properties, "limit", 5))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"results": hits}, nil
	}
}

func memoryStoreDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "memory/store",
		Category: domain.CategoryMemory,
		Inputs: []domain.PortSpec{
			{Name: "key", Type: domain.TypeString},
			{Name: "content", Type: domain.TypeString},
		},
		Outputs: []domain.PortSpec{
			{Name: "stored", Type: domain.TypeBoolean},
		},
	}
}

func execMemoryStore(store ports.MemoryStore) ExecFunc {
	return func(ctx context.Context, req ExecRequest) (map[string]interface{}, error) {
		if store == nil {
			return nil, fmt.Errorf("memory store not configured")
		}
		if err := store.Store(ctx, req.StringInput("key", ""), req.StringInput("content", "")); err != nil {
			return nil, err
		}
		return map[string]interface{}{"stored": true}, nil
	}
}

func skillInvokeDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "skill/invoke",
		Category: domain.CategorySkill,
		Inputs: []domain.PortSpec{
			{Name: "args", Type: domain.TypeObject, Optional: true},
		},
		Outputs: []domain.PortSpec{
			{Name: "result", Type: domain.TypeSkillResult},
		},
	}
}

func execSkillInvoke(runner ports.SkillRunner) ExecFunc {
	return func(ctx context.Context, req ExecRequest) (map[string]interface{}, error) {
		if runner == nil {
			return nil, fmt.Errorf("skill runner not configured")
		}
		name := req.StringProperty("skill", "")
		if name == "" {
			return nil, fmt.Errorf("skill property is required")
		}
		args, _ := req.Inputs["args"].(map[string]interface{})
		result, err := runner.Run(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"result": result}, nil
	}
}

// --- transforms ---

func templateDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "transform/template",
		Category: domain.CategoryTransform,
		Inputs: []domain.PortSpec{
			{Name: "values", Type: domain.TypeObject, Optional: true},
			{Name: "text", Type: domain.TypeString, Optional: true},
		},
		Outputs: []domain.PortSpec{
			{Name: "text", Type: domain.TypeString},
		},
	}
}

// execTemplate substitutes {{key}} placeholders from the values input and
// the {{text}} placeholder from the text input.
func execTemplate(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	tpl := req.StringProperty("template", "{{text}}")
	if values, ok := req.Inputs["values"].(map[string]interface{}); ok {
		for k, v := range values {
			tpl = strings.ReplaceAll(tpl, "{{"+k+"}}", fmt.Sprintf("%v", v))
		}
	}
	tpl = strings.ReplaceAll(tpl, "{{text}}", req.StringInput("text", ""))
	return map[string]interface{}{"text": tpl}, nil
}

func mergeDesc() domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     "transform/merge",
		Category: domain.CategoryTransform,
		Inputs: []domain.PortSpec{
			{Name: "a", Type: domain.TypeWildcard, Optional: true},
			{Name: "b", Type: domain.TypeWildcard, Optional: true},
		},
		Outputs: []domain.PortSpec{
			{Name: "merged", Type: domain.TypeObject},
		},
	}
}

func execMerge(_ context.Context, req ExecRequest) (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	for name, v := range req.Inputs {
		if m, ok := v.(map[string]interface{}); ok {
			for k, mv := range m {
				merged[k] = mv
			}
			continue
		}
		merged[name] = v
	}
	return map[string]interface{}{"merged": merged}, nil
}

// JSON numbers decode as float64; properties may also carry native ints.

func intProperty(props map[string]interface{}, key string, def int) int {
	switch v := props[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func floatProperty(props map[string]interface{}, key string, def float64) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
