package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestApply_Creates(t *testing.T) {
	cs := fake.NewSimpleClientset()
	objs, err := BuildObjects(testSpec())
	require.NoError(t, err)

	require.NoError(t, Apply(context.Background(), cs, objs))

	dep, err := cs.AppsV1().Deployments("bots").Get(context.Background(), "qr-cipher-bot", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/qr-cipher-bot:1.0.0", dep.Spec.Template.Spec.Containers[0].Image)

	_, err = cs.CoreV1().Services("bots").Get(context.Background(), "qr-cipher-bot", metav1.GetOptions{})
	require.NoError(t, err)
}

func TestApply_UpdatesExisting(t *testing.T) {
	existing := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "qr-cipher-bot", Namespace: "bots"},
		Spec: corev1.ServiceSpec{
			ClusterIP:  "10.0.0.5",
			ClusterIPs: []string{"10.0.0.5"},
		},
	}
	cs := fake.NewSimpleClientset(existing)

	objs, err := BuildObjects(testSpec())
	require.NoError(t, err)
	require.NoError(t, Apply(context.Background(), cs, objs))

	spec := testSpec()
	spec.Image = "registry.example.com/qr-cipher-bot:1.1.0"
	objs, err = BuildObjects(spec)
	require.NoError(t, err)
	require.NoError(t, Apply(context.Background(), cs, objs))

	dep, err := cs.AppsV1().Deployments("bots").Get(context.Background(), "qr-cipher-bot", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/qr-cipher-bot:1.1.0", dep.Spec.Template.Spec.Containers[0].Image)

	svc, err := cs.CoreV1().Services("bots").Get(context.Background(), "qr-cipher-bot", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", svc.Spec.ClusterIP)
	assert.Equal(t, int32(8000), svc.Spec.Ports[0].Port)
}
