package main

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// newKubeClient builds a client-go clientset. With kubeconfigPath empty it
// resolves in-cluster config, the shape the agent runs under as a DaemonSet;
// a non-empty path is for running it off-cluster during development.
func newKubeClient(kubeconfigPath string) (kubernetes.Interface, error) {
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("build kubeconfig: %w", err)
	}

	return kubernetes.NewForConfig(cfg)
}

// defaultKubeconfigPath returns $HOME/.kube/config when it exists, or "" to
// fall back to in-cluster config.
func defaultKubeconfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".kube", "config")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
