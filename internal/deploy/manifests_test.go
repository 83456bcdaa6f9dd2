package deploy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"
)

func testSpec() ManifestSpec {
	return ManifestSpec{
		Name:       "qr-cipher-bot",
		Namespace:  "bots",
		Image:      "registry.example.com/qr-cipher-bot:1.0.0",
		Replicas:   2,
		Port:       8000,
		SecretName: "qr-cipher-bot",
	}
}

func TestBuildObjects(t *testing.T) {
	objs, err := BuildObjects(testSpec())
	require.NoError(t, err)

	dep := objs.Deployment
	assert.Equal(t, "bots", dep.Namespace)
	assert.Equal(t, int32(2), *dep.Spec.Replicas)

	c := dep.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "registry.example.com/qr-cipher-bot:1.0.0", c.Image)
	assert.Equal(t, int32(8000), c.Ports[0].ContainerPort)
	assert.Equal(t, "/health", c.LivenessProbe.HTTPGet.Path)
	assert.Equal(t, "/health", c.ReadinessProbe.HTTPGet.Path)
	assert.Equal(t, c.Ports[0].Name, c.ReadinessProbe.HTTPGet.Port.String())
	assert.Equal(t, "qr-cipher-bot", c.EnvFrom[0].SecretRef.Name)
	assert.True(t, *c.SecurityContext.RunAsNonRoot)

	svc := objs.Service
	assert.Equal(t, int32(8000), svc.Spec.Ports[0].Port)
	assert.Equal(t, c.Ports[0].Name, svc.Spec.Ports[0].TargetPort.String())
	assert.Equal(t, dep.Spec.Selector.MatchLabels, svc.Spec.Selector)
}

func TestBuildObjects_DefaultNamespace(t *testing.T) {
	spec := testSpec()
	spec.Namespace = ""
	spec.SecretName = ""

	objs, err := BuildObjects(spec)
	require.NoError(t, err)
	assert.Equal(t, "default", objs.Deployment.Namespace)
	assert.Empty(t, objs.Deployment.Spec.Template.Spec.Containers[0].EnvFrom)
}

func TestBuildObjects_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ManifestSpec)
	}{
		{"no name", func(s *ManifestSpec) { s.Name = "" }},
		{"no image", func(s *ManifestSpec) { s.Image = "" }},
		{"zero port", func(s *ManifestSpec) { s.Port = 0 }},
		{"port too large", func(s *ManifestSpec) { s.Port = 70000 }},
		{"negative replicas", func(s *ManifestSpec) { s.Replicas = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(&spec)
			_, err := BuildObjects(spec)
			assert.Error(t, err)
		})
	}
}

func TestRenderManifests(t *testing.T) {
	out, err := RenderManifests(testSpec())
	require.NoError(t, err)

	docs := strings.Split(string(out), "---\n")
	require.Len(t, docs, 2)

	var dep appsv1.Deployment
	require.NoError(t, yaml.Unmarshal([]byte(docs[0]), &dep))
	assert.Equal(t, "Deployment", dep.Kind)
	assert.Equal(t, int32(8000), dep.Spec.Template.Spec.Containers[0].Ports[0].ContainerPort)

	var svc corev1.Service
	require.NoError(t, yaml.Unmarshal([]byte(docs[1]), &svc))
	assert.Equal(t, "Service", svc.Kind)
	assert.Equal(t, "http", svc.Spec.Ports[0].TargetPort.String())
}
