package deploy

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Apply creates the objects, or updates them when they already exist.
func Apply(ctx context.Context, cs kubernetes.Interface, objs *Objects) error {
	if err := applyDeployment(ctx, cs, objs); err != nil {
		return err
	}
	return applyService(ctx, cs, objs)
}

func applyDeployment(ctx context.Context, cs kubernetes.Interface, objs *Objects) error {
	want := objs.Deployment
	client := cs.AppsV1().Deployments(want.Namespace)
	logger := log.WithFields(log.Fields{"kind": "Deployment", "namespace": want.Namespace, "name": want.Name})

	current, err := client.Get(ctx, want.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := client.Create(ctx, want, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("create deployment: %w", err)
		}
		logger.Info("created")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get deployment: %w", err)
	}

	update := want.DeepCopy()
	update.ResourceVersion = current.ResourceVersion
	if _, err := client.Update(ctx, update, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	logger.Info("updated")
	return nil
}

func applyService(ctx context.Context, cs kubernetes.Interface, objs *Objects) error {
	want := objs.Service
	client := cs.CoreV1().Services(want.Namespace)
	logger := log.WithFields(log.Fields{"kind": "Service", "namespace": want.Namespace, "name": want.Name})

	current, err := client.Get(ctx, want.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := client.Create(ctx, want, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("create service: %w", err)
		}
		logger.Info("created")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get service: %w", err)
	}

	// ClusterIP is immutable once allocated.
	update := want.DeepCopy()
	update.ResourceVersion = current.ResourceVersion
	update.Spec.ClusterIP = current.Spec.ClusterIP
	update.Spec.ClusterIPs = current.Spec.ClusterIPs
	if _, err := client.Update(ctx, update, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	logger.Info("updated")
	return nil
}
