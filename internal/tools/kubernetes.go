package tools

import (
	"context"

	"github.com/kubesage/kubesage/internal/kube"
	"github.com/kubesage/kubesage/internal/llm"
)

// KubernetesQueryToolName is the single tool the agent exposes to the model.
const KubernetesQueryToolName = "execute_kubernetes_query"

// KubernetesQueryDefinition declares the tool schema: resource_type is
// required, namespace defaults to "default", and the presence of name
// switches the operation from list to read.
func KubernetesQueryDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        KubernetesQueryToolName,
		Description: "Execute a read-only query on a Kubernetes cluster to list or describe resources like pods, deployments, or services.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resource_type": map[string]interface{}{
					"type":        "string",
					"description": "The type of K8s resource to query (e.g., 'pod', 'deployment', 'service'). Lowercase singular form.",
				},
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "The Kubernetes namespace to query. Defaults to 'default' if not specified.",
					"default":     "default",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Optional: The specific name of the resource to describe. Omit to list all resources of the type.",
				},
			},
			"required": []interface{}{"resource_type"},
		},
	}
}

// KubernetesQueryTool bridges validated tool-call arguments to the resource
// query dispatcher. The dispatcher owns the error taxonomy; this executor
// never returns an error, so model-visible failures always arrive inside the
// result envelope.
type KubernetesQueryTool struct {
	dispatcher *kube.Dispatcher
}

// NewKubernetesQueryTool creates the executor over the given dispatcher.
func NewKubernetesQueryTool(dispatcher *kube.Dispatcher) *KubernetesQueryTool {
	return &KubernetesQueryTool{dispatcher: dispatcher}
}

// Execute runs one query and returns the serialized result envelope.
func (t *KubernetesQueryTool) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	req := kube.Request{
		ResourceType: stringArg(input, "resource_type"),
		Namespace:    stringArg(input, "namespace"),
		Name:         stringArg(input, "name"),
	}
	return t.dispatcher.Dispatch(ctx, req).JSON(), nil
}

func stringArg(input map[string]interface{}, key string) string {
	s, _ := input[key].(string)
	return s
}

// RegisterKubernetesQuery wires the tool into a registry.
func RegisterKubernetesQuery(r *Registry, dispatcher *kube.Dispatcher) {
	r.Register(KubernetesQueryDefinition(), NewKubernetesQueryTool(dispatcher))
}
