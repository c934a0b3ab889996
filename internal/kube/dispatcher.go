package kube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Operation is the query mode selected by the presence of a resource name.
type Operation string

const (
	OpRead Operation = "read"
	OpList Operation = "list"
)

// Status tags on the result envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one abstract resource query.
type Request struct {
	ResourceType string `json:"resource_type"`
	Namespace    string `json:"namespace,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Result is the normalized envelope every dispatch terminates in. On success
// Data holds the serialized resource object or list; on error it holds a
// human-readable diagnostic string.
type Result struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

func errorResult(format string, args ...interface{}) Result {
	return Result{Status: StatusError, Data: fmt.Sprintf(format, args...)}
}

// JSON returns the envelope serialized for the conversation layer.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":%q,"data":"failed to serialize result: %v"}`, StatusError, err)
	}
	return string(data)
}

type operationKey struct {
	suffix string
	op     Operation
}

// operationFunc executes one read or list call. name is empty for lists;
// namespace is ignored by cluster-scoped operations.
type operationFunc func(ctx context.Context, cs kubernetes.Interface, namespace, name string) (interface{}, error)

// Dispatcher resolves resource query requests against the cluster.
//
// The mapping table and the typed operation table are built once at
// construction and immutable afterwards; every mapping entry is verified to
// resolve to registered read and list operations, so a mapping naming an
// unservable suffix fails here instead of at dispatch time. Only read and
// list closures exist in the table, which makes the read-only contract
// structural rather than a naming convention.
type Dispatcher struct {
	mapping Mapping
	ops     map[operationKey]operationFunc
	clients ClientProvider
	logger  *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher builds a dispatcher over the given mapping and client provider.
func NewDispatcher(mapping Mapping, clients ClientProvider, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		mapping: mapping,
		ops:     buildOperations(),
		clients: clients,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for key, entry := range mapping {
		for _, op := range []Operation{OpRead, OpList} {
			if _, ok := d.ops[operationKey{entry.MethodSuffix, op}]; !ok {
				return nil, fmt.Errorf("resource mapping: %q names suffix %q with no registered %s operation",
					key, entry.MethodSuffix, op)
			}
		}
	}
	return d, nil
}

// Dispatch executes exactly one read or list operation and returns the result
// envelope. Every failure path terminates in an error envelope; no error or
// panic escapes to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher panic recovered", "resource_type", req.ResourceType, "panic", r)
			result = errorResult("An unexpected error occurred: %v", r)
		}
	}()

	entry, ok := d.mapping.Lookup(req.ResourceType)
	if !ok {
		return errorResult("Unsupported resource type: '%s'.", req.ResourceType)
	}

	namespace := req.Namespace
	if namespace == "" {
		namespace = "default"
	}

	op := OpList
	if req.Name != "" {
		op = OpRead
	}

	fn, ok := d.ops[operationKey{entry.MethodSuffix, op}]
	if !ok {
		// Guarded at construction; kept so a dispatch can never panic on a
		// stale table.
		return errorResult("Internal Tool Error: no %s operation registered for '%s'. Check the resource mapping.",
			op, entry.MethodSuffix)
	}

	cs, err := d.clients.Client()
	if err != nil {
		return errorResult("An unexpected error occurred: %v", err)
	}

	d.logger.Debug("dispatching resource query",
		"resource_type", entry.ResourceType, "operation", string(op),
		"namespace", namespace, "name", req.Name, "surface", string(entry.Surface()))

	obj, err := fn(ctx, cs, namespace, req.Name)
	if err != nil {
		var statusErr *apierrors.StatusError
		if errors.As(err, &statusErr) {
			return errorResult("Kubernetes API Error: %s", statusErr.ErrStatus.Message)
		}
		return errorResult("An unexpected error occurred: %v", err)
	}

	data, err := toPlain(obj)
	if err != nil {
		return errorResult("An unexpected error occurred: %v", err)
	}
	return Result{Status: StatusSuccess, Data: data}
}

// toPlain serializes an API object graph into plain maps, slices, and scalars
// so no live client types cross the dispatcher boundary.
func toPlain(obj interface{}) (interface{}, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("serialize resource: %w", err)
	}
	var plain interface{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("serialize resource: %w", err)
	}
	return plain, nil
}

// buildOperations returns the typed operation table. Namespaced entries take
// the namespace argument; cluster-scoped entries (namespace, node,
// persistent_volume) ignore it.
func buildOperations() map[operationKey]operationFunc {
	ops := make(map[operationKey]operationFunc)

	register := func(suffix string,
		read func(ctx context.Context, cs kubernetes.Interface, namespace, name string) (interface{}, error),
		list func(ctx context.Context, cs kubernetes.Interface, namespace string) (interface{}, error)) {
		ops[operationKey{suffix, OpRead}] = read
		ops[operationKey{suffix, OpList}] = func(ctx context.Context, cs kubernetes.Interface, namespace, _ string) (interface{}, error) {
			return list(ctx, cs, namespace)
		}
	}

	getOpts := metav1.GetOptions{}
	listOpts := metav1.ListOptions{}

	// Core surface, namespaced.
	register("pod",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().Pods(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().Pods(ns).List(ctx, listOpts)
		})
	register("service",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().Services(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().Services(ns).List(ctx, listOpts)
		})
	register("config_map",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().ConfigMaps(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().ConfigMaps(ns).List(ctx, listOpts)
		})
	register("secret",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().Secrets(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().Secrets(ns).List(ctx, listOpts)
		})
	register("persistent_volume_claim",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().PersistentVolumeClaims(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().PersistentVolumeClaims(ns).List(ctx, listOpts)
		})
	register("service_account",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().ServiceAccounts(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().ServiceAccounts(ns).List(ctx, listOpts)
		})
	register("resource_quota",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().ResourceQuotas(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().ResourceQuotas(ns).List(ctx, listOpts)
		})
	register("limit_range",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().LimitRanges(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().LimitRanges(ns).List(ctx, listOpts)
		})
	register("endpoints",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().Endpoints(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().Endpoints(ns).List(ctx, listOpts)
		})
	register("event",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.CoreV1().Events(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.CoreV1().Events(ns).List(ctx, listOpts)
		})

	// Core surface, cluster-scoped.
	register("namespace",
		func(ctx context.Context, cs kubernetes.Interface, _, name string) (interface{}, error) {
			return cs.CoreV1().Namespaces().Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, _ string) (interface{}, error) {
			return cs.CoreV1().Namespaces().List(ctx, listOpts)
		})
	register("node",
		func(ctx context.Context, cs kubernetes.Interface, _, name string) (interface{}, error) {
			return cs.CoreV1().Nodes().Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, _ string) (interface{}, error) {
			return cs.CoreV1().Nodes().List(ctx, listOpts)
		})
	register("persistent_volume",
		func(ctx context.Context, cs kubernetes.Interface, _, name string) (interface{}, error) {
			return cs.CoreV1().PersistentVolumes().Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, _ string) (interface{}, error) {
			return cs.CoreV1().PersistentVolumes().List(ctx, listOpts)
		})

	// Apps surface.
	register("deployment",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.AppsV1().Deployments(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.AppsV1().Deployments(ns).List(ctx, listOpts)
		})
	register("stateful_set",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.AppsV1().StatefulSets(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.AppsV1().StatefulSets(ns).List(ctx, listOpts)
		})
	register("replica_set",
		func(ctx context.Context, cs kubernetes.Interface, ns, name string) (interface{}, error) {
			return cs.AppsV1().ReplicaSets(ns).Get(ctx, name, getOpts)
		},
		func(ctx context.Context, cs kubernetes.Interface, ns string) (interface{}, error) {
			return cs.AppsV1().ReplicaSets(ns).List(ctx, listOpts)
		})

	return ops
}
