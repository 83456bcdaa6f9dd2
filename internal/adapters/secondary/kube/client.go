package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"qr-cipher-bot/internal/config"
)

// NewClientset builds a typed clientset from in-cluster credentials, an
// explicit kubeconfig, or ~/.kube/config, in that order.
func NewClientset(cfg *config.KubernetesConfig) (kubernetes.Interface, error) {
	restCfg, err := restConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return client, nil
}

func restConfig(cfg *config.KubernetesConfig) (*rest.Config, error) {
	if cfg.InCluster {
		return rest.InClusterConfig()
	}
	if cfg.KubeConfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return clientcmd.BuildConfigFromFlags("", env)
	}
	home, _ := os.UserHomeDir()
	return clientcmd.BuildConfigFromFlags("", filepath.Join(home, ".kube", "config"))
}
