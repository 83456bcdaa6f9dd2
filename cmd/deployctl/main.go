package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"qr-cipher-bot/internal/adapters/secondary/kube"
	"qr-cipher-bot/internal/config"
	"qr-cipher-bot/internal/deploy"
)

var errViolations = errors.New("dockerfile violates the deployment contract")

type options struct {
	file       string
	contextDir string
	port       int

	name       string
	image      string
	namespace  string
	replicas   int32
	secret     string
	kubeconfig string
	inCluster  bool
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errViolations) {
			log.Error(err)
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "deployctl",
		Short:         "Check the service Dockerfile and deploy it to Kubernetes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "Dockerfile", "path to the Dockerfile")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the Dockerfile against the deployment contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(out, opts)
		},
	}
	verify.Flags().StringVar(&opts.contextDir, "context", "", "build context directory (default: the Dockerfile's directory)")
	verify.Flags().IntVar(&opts.port, "port", 8000, "port the service must expose and bind")

	manifests := &cobra.Command{
		Use:   "manifests",
		Short: "Print the Deployment and Service as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := manifestSpec(opts)
			if err != nil {
				return err
			}
			data, err := deploy.RenderManifests(spec)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}

	apply := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the Deployment and Service in a cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := manifestSpec(opts)
			if err != nil {
				return err
			}
			objs, err := deploy.BuildObjects(spec)
			if err != nil {
				return err
			}
			cs, err := kube.NewClientset(&config.KubernetesConfig{
				InCluster:      opts.inCluster,
				KubeConfigPath: opts.kubeconfig,
				Namespace:      spec.Namespace,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return deploy.Apply(ctx, cs, objs)
		},
	}
	apply.Flags().StringVar(&opts.kubeconfig, "kubeconfig", "", "path to a kubeconfig file")
	apply.Flags().BoolVar(&opts.inCluster, "in-cluster", false, "use the pod's service account")

	for _, c := range []*cobra.Command{manifests, apply} {
		c.Flags().StringVar(&opts.image, "image", "", "container image reference")
		c.Flags().StringVar(&opts.name, "name", "qr-cipher-bot", "workload name")
		c.Flags().StringVar(&opts.namespace, "namespace", "default", "target namespace")
		c.Flags().Int32Var(&opts.replicas, "replicas", 1, "replica count")
		c.Flags().StringVar(&opts.secret, "secret", "qr-cipher-bot", "secret loaded into the container environment")
		_ = c.MarkFlagRequired("image")
	}

	root.AddCommand(verify, manifests, apply)
	return root
}

func runVerify(out io.Writer, opts *options) error {
	d, err := deploy.ParseFile(opts.file)
	if err != nil {
		return err
	}

	dir := opts.contextDir
	if dir == "" {
		dir = filepath.Dir(opts.file)
	}
	violations := deploy.Check(d, deploy.CheckOptions{
		Context:      os.DirFS(dir),
		ExpectedPort: opts.port,
	})
	for _, v := range violations {
		fmt.Fprintf(out, "%s: %s\n", opts.file, v)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%w: %d violation(s)", errViolations, len(violations))
	}

	fmt.Fprintf(out, "%s: ok (packages %v, port %d)\n", opts.file, d.Packages(), d.StartBinding().Port)
	return nil
}

// manifestSpec takes the container port from the Dockerfile so the manifests
// cannot drift from the image.
func manifestSpec(opts *options) (deploy.ManifestSpec, error) {
	d, err := deploy.ParseFile(opts.file)
	if err != nil {
		return deploy.ManifestSpec{}, err
	}
	ports := d.ExposedPorts()
	if len(ports) == 0 {
		return deploy.ManifestSpec{}, fmt.Errorf("%s exposes no port", opts.file)
	}

	return deploy.ManifestSpec{
		Name:       opts.name,
		Namespace:  opts.namespace,
		Image:      opts.image,
		Replicas:   opts.replicas,
		Port:       int32(ports[0]),
		SecretName: opts.secret,
	}, nil
}
