package kube

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientProvider supplies the clientset used by the dispatcher. Implementations
// must be safe for concurrent use.
type ClientProvider interface {
	Client() (kubernetes.Interface, error)
}

// KubeconfigProvider builds a clientset lazily from a kubeconfig file at a
// fixed path (the uploaded credentials artifact). The built clientset is
// cached until Invalidate is called, typically by the kubeconfig watcher
// after an upload replaces the file.
type KubeconfigProvider struct {
	path string

	mu     sync.RWMutex
	cached kubernetes.Interface
	group  singleflight.Group
}

// NewKubeconfigProvider creates a provider reading the kubeconfig at path.
func NewKubeconfigProvider(path string) *KubeconfigProvider {
	return &KubeconfigProvider{path: path}
}

// Path returns the kubeconfig path this provider reads from.
func (p *KubeconfigProvider) Path() string { return p.path }

// Client returns the cached clientset, building it on first use. Concurrent
// first calls are collapsed into a single build.
func (p *KubeconfigProvider) Client() (kubernetes.Interface, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := p.group.Do("build", func() (interface{}, error) {
		if _, err := os.Stat(p.path); err != nil {
			return nil, fmt.Errorf("kubeconfig not available at %s: %w", p.path, err)
		}
		config, err := clientcmd.BuildConfigFromFlags("", p.path)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig %s: %w", p.path, err)
		}
		cs, err := kubernetes.NewForConfig(config)
		if err != nil {
			return nil, fmt.Errorf("build clientset: %w", err)
		}
		p.mu.Lock()
		p.cached = cs
		p.mu.Unlock()
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(kubernetes.Interface), nil
}

// Invalidate drops the cached clientset so the next Client call rebuilds it.
func (p *KubeconfigProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// StaticProvider wraps a fixed clientset. Used in tests with the fake clientset.
type StaticProvider struct {
	clientset kubernetes.Interface
}

// NewStaticProvider creates a provider that always returns cs.
func NewStaticProvider(cs kubernetes.Interface) *StaticProvider {
	return &StaticProvider{clientset: cs}
}

// Client returns the wrapped clientset.
func (p *StaticProvider) Client() (kubernetes.Interface, error) {
	if p.clientset == nil {
		return nil, fmt.Errorf("no clientset configured")
	}
	return p.clientset, nil
}
