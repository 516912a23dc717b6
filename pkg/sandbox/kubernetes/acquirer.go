// Package kubernetes acquires sandbox workers as agent-sandbox SandboxClaims,
// so every code execution can get a dedicated pod.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/sandbox/remote"
)

var _ remote.Acquirer = (*ClaimAcquirer)(nil)

// Config selects the SandboxTemplate and how long to wait for a worker.
type Config struct {
	Template  string
	Namespace string

	// ReadyTimeout bounds the wait for the claimed Sandbox. Default 60s.
	ReadyTimeout time.Duration

	// Port is the sandbox-server port inside the pod. Default 8080.
	Port int

	// PollInterval between Sandbox status checks. Default 500ms.
	PollInterval time.Duration
}

// ClaimAcquirer creates one SandboxClaim per execution, waits for the bound
// Sandbox to report Ready, and deletes the claim on release.
type ClaimAcquirer struct {
	client client.Client
	cfg    Config
}

// NewClaimAcquirer creates a ClaimAcquirer, applying defaults to cfg.
func NewClaimAcquirer(c client.Client, cfg Config) (*ClaimAcquirer, error) {
	if cfg.Template == "" {
		return nil, fmt.Errorf("kubernetes sandbox: template is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 60 * time.Second
	}
	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &ClaimAcquirer{client: c, cfg: cfg}, nil
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Acquire claims a Sandbox and returns its worker URL along with a release
// function that deletes the claim. The claim is removed on every error path.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	name := claimName()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.cfg.Namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "datagem"},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{Name: a.cfg.Template},
		},
	}
	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", name, err)
	}
	debug.Log(debug.Sandbox, "created SandboxClaim", "name", name, "namespace", a.cfg.Namespace, "template", a.cfg.Template)

	fqdn, err := a.waitForReady(ctx, name)
	if err != nil {
		a.deleteClaim(name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, a.cfg.Port)
	debug.Log(debug.Sandbox, "sandbox acquired", "name", name, "url", url)
	return url, func() { a.deleteClaim(name) }, nil
}

// waitForReady polls the Sandbox named after the claim until it is Ready and
// has a service FQDN.
func (a *ClaimAcquirer) waitForReady(ctx context.Context, name string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	key := types.NamespacedName{Name: name, Namespace: a.cfg.Namespace}
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", fmt.Errorf("cancelled waiting for Sandbox %q: %w", name, ctx.Err())
			}
			return "", fmt.Errorf("timeout waiting for Sandbox %q to become ready (waited %s)", name, a.cfg.ReadyTimeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			if err := a.client.Get(waitCtx, key, sb); err != nil {
				// The controller may not have created it yet.
				continue
			}
			if isReady(sb) && sb.Status.ServiceFQDN != "" {
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim runs on release and cleanup paths, so it uses its own context
// and only logs failures.
func (a *ClaimAcquirer) deleteClaim(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.cfg.Namespace},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", a.cfg.Namespace, "error", err.Error())
		return
	}
	debug.Log(debug.Sandbox, "deleted SandboxClaim", "name", name)
}

// claimName is replaceable in tests for deterministic naming.
var claimName = func() string {
	return "datagem-sandbox-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
