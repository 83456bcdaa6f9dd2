package deploy

import (
	"bytes"
	"errors"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"
)

const (
	healthPath = "/health"
	portName   = "http"
	nonRootUID = 65532
)

// ManifestSpec describes the workload rendered for the cluster.
type ManifestSpec struct {
	Name      string
	Namespace string
	Image     string
	Replicas  int32
	Port      int32
	// SecretName, if set, is loaded into the container environment.
	SecretName string
	Labels     map[string]string
}

// Objects are the cluster objects for one deployment of the service.
type Objects struct {
	Deployment *appsv1.Deployment
	Service    *corev1.Service
}

func (s ManifestSpec) validate() error {
	switch {
	case s.Name == "":
		return errors.New("manifest name is required")
	case s.Image == "":
		return errors.New("manifest image is required")
	case s.Port <= 0 || s.Port > 65535:
		return fmt.Errorf("invalid container port %d", s.Port)
	case s.Replicas < 0:
		return fmt.Errorf("invalid replica count %d", s.Replicas)
	}
	return nil
}

// BuildObjects returns the Deployment and Service for spec. The container
// port, the service target port and both probes all use spec.Port.
func BuildObjects(spec ManifestSpec) (*Objects, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if spec.Namespace == "" {
		spec.Namespace = "default"
	}

	labels := map[string]string{
		"app.kubernetes.io/name":       spec.Name,
		"app.kubernetes.io/managed-by": "deployctl",
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	selector := map[string]string{"app.kubernetes.io/name": spec.Name}
	meta := metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace, Labels: labels}

	probe := func(initialDelay int32) *corev1.Probe {
		return &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: healthPath,
					Port: intstr.FromString(portName),
				},
			},
			InitialDelaySeconds: initialDelay,
			PeriodSeconds:       10,
			TimeoutSeconds:      2,
			FailureThreshold:    3,
		}
	}

	container := corev1.Container{
		Name:            spec.Name,
		Image:           spec.Image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Ports: []corev1.ContainerPort{{
			Name:          portName,
			ContainerPort: spec.Port,
			Protocol:      corev1.ProtocolTCP,
		}},
		LivenessProbe:  probe(10),
		ReadinessProbe: probe(2),
		SecurityContext: &corev1.SecurityContext{
			RunAsNonRoot:             ptr(true),
			RunAsUser:                ptr(int64(nonRootUID)),
			ReadOnlyRootFilesystem:   ptr(true),
			AllowPrivilegeEscalation: ptr(false),
			Capabilities:             &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
		},
	}
	if spec.SecretName != "" {
		container.EnvFrom = []corev1.EnvFromSource{{
			SecretRef: &corev1.SecretEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: spec.SecretName},
			},
		}}
	}

	deployment := &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: meta,
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr(spec.Replicas),
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
		},
	}

	service := &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: *meta.DeepCopy(),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: selector,
			Ports: []corev1.ServicePort{{
				Name:       portName,
				Port:       spec.Port,
				TargetPort: intstr.FromString(portName),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}

	return &Objects{Deployment: deployment, Service: service}, nil
}

// RenderManifests renders the Deployment and Service as a multi-document
// YAML stream.
func RenderManifests(spec ManifestSpec) ([]byte, error) {
	objs, err := BuildObjects(spec)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for i, obj := range []any{objs.Deployment, objs.Service} {
		data, err := yaml.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("marshal manifest: %w", err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func ptr[T any](v T) *T {
	return &v
}
