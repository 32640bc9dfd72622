package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pulumi/pulumi-digitalocean/sdk/v4/go/digitalocean"
	"github.com/pulumi/pulumi-kubernetes/sdk/v4/go/kubernetes"
	corev1 "github.com/pulumi/pulumi-kubernetes/sdk/v4/go/kubernetes/core/v1"
	metav1 "github.com/pulumi/pulumi-kubernetes/sdk/v4/go/kubernetes/meta/v1"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

const prefix = "campsite"

type settings struct {
	region      string
	nodeSize    string
	nodeCount   int
	environment string
	timezone    string
	kafka       bool
}

// backing services the campsite binaries connect to
type dataStores struct {
	postgres *digitalocean.DatabaseCluster
	valkey   *digitalocean.DatabaseCluster
	kafka    *digitalocean.DatabaseCluster
}

func loadSettings(ctx *pulumi.Context) settings {
	cfg := config.New(ctx, "")
	s := settings{
		region:      cfg.Get("region"),
		nodeSize:    cfg.Get("nodeSize"),
		nodeCount:   cfg.GetInt("nodeCount"),
		environment: cfg.Get("environment"),
		timezone:    cfg.Get("timezone"),
		kafka:       cfg.GetBool("kafka"),
	}
	if s.region == "" {
		s.region = "tor1"
	}
	if s.nodeSize == "" {
		s.nodeSize = "s-2vcpu-2gb"
	}
	if s.nodeCount == 0 {
		s.nodeCount = 2
	}
	if s.environment == "" {
		s.environment = "production"
	}
	if s.timezone == "" {
		s.timezone = "America/Toronto"
	}
	return s
}

func newDataStores(ctx *pulumi.Context, s settings, vpc *digitalocean.Vpc) (*dataStores, error) {
	postgres, err := digitalocean.NewDatabaseCluster(ctx, prefix+"-postgres", &digitalocean.DatabaseClusterArgs{
		Name:               pulumi.String(prefix + "-postgres"),
		Engine:             pulumi.String("pg"),
		Version:            pulumi.String("16"),
		Size:               pulumi.String("db-s-1vcpu-1gb"),
		Region:             pulumi.String(s.region),
		NodeCount:          pulumi.Int(1),
		PrivateNetworkUuid: vpc.ID(),
	})
	if err != nil {
		return nil, err
	}

	// Valkey speaks the Redis protocol, the date cache needs nothing else
	valkey, err := digitalocean.NewDatabaseCluster(ctx, prefix+"-valkey", &digitalocean.DatabaseClusterArgs{
		Name:               pulumi.String(prefix + "-valkey"),
		Engine:             pulumi.String("valkey"),
		Version:            pulumi.String("8"),
		Size:               pulumi.String("db-s-1vcpu-1gb"),
		Region:             pulumi.String(s.region),
		NodeCount:          pulumi.Int(1),
		PrivateNetworkUuid: vpc.ID(),
	})
	if err != nil {
		return nil, err
	}

	stores := &dataStores{postgres: postgres, valkey: valkey}
	if !s.kafka {
		return stores, nil
	}

	stores.kafka, err = digitalocean.NewDatabaseCluster(ctx, prefix+"-kafka", &digitalocean.DatabaseClusterArgs{
		Name:               pulumi.String(prefix + "-kafka"),
		Engine:             pulumi.String("kafka"),
		Version:            pulumi.String("3.8"),
		Size:               pulumi.String("db-s-2vcpu-2gb"),
		Region:             pulumi.String(s.region),
		NodeCount:          pulumi.Int(3),
		PrivateNetworkUuid: vpc.ID(),
	})
	if err != nil {
		return nil, err
	}
	return stores, nil
}

// appEnvironment maps the provisioned services onto the env variables read by config.Initialise
func appEnvironment(s settings, stores *dataStores) (pulumi.StringMap, pulumi.StringMap) {
	env := pulumi.StringMap{
		"APP_ENV":           pulumi.String(s.environment),
		"CAMPSITE_TIMEZONE": pulumi.String(s.timezone),
		"DB_HOST":           stores.postgres.PrivateHost,
		"DB_PORT":           pulumi.Sprintf("%v", stores.postgres.Port),
		"DB_NAME":           stores.postgres.Database,
		"DB_USER":           stores.postgres.User,
		"DB_SSL_MODE":       pulumi.String("require"),
		"REDIS_ENABLED":     pulumi.String("true"),
		"REDIS_HOST":        stores.valkey.PrivateHost,
		"REDIS_PORT":        pulumi.Sprintf("%v", stores.valkey.Port),
		"KAFKA_ENABLED":     pulumi.String(fmt.Sprintf("%t", stores.kafka != nil)),
	}
	secrets := pulumi.StringMap{
		"DB_PASSWORD":    stores.postgres.Password,
		"REDIS_PASSWORD": stores.valkey.Password,
	}

	if stores.kafka != nil {
		env["KAFKA_BROKERS"] = pulumi.Sprintf("%s:%v", stores.kafka.PrivateHost, stores.kafka.Port)
		secrets["KAFKA_PASSWORD"] = stores.kafka.Password
	}
	return env, secrets
}

// registrySecret lets the cluster pull images from the DigitalOcean registry
func registrySecret(ctx *pulumi.Context, cfg *config.Config, namespace *corev1.Namespace, provider pulumi.ProviderResource) error {
	accessToken := os.Getenv("DIGITALOCEAN_ACCESS_TOKEN")
	if accessToken == "" {
		accessToken = cfg.Get("digitalocean:token")
	}
	if accessToken == "" {
		return nil
	}

	dockerConfig, err := json.Marshal(map[string]interface{}{
		"auths": map[string]interface{}{
			"registry.digitalocean.com": map[string]interface{}{
				"username": "campsite",
				"password": accessToken,
				"auth":     base64.StdEncoding.EncodeToString([]byte("campsite:" + accessToken)),
			},
		},
	})
	if err != nil {
		return err
	}

	secret, err := corev1.NewSecret(ctx, prefix+"-regcred", &corev1.SecretArgs{
		Metadata: &metav1.ObjectMetaArgs{
			Name:      pulumi.String("regcred"),
			Namespace: namespace.Metadata.Name(),
		},
		Type: pulumi.String("kubernetes.io/dockerconfigjson"),
		Data: pulumi.StringMap{
			".dockerconfigjson": pulumi.String(base64.StdEncoding.EncodeToString(dockerConfig)),
		},
	}, pulumi.Provider(provider))
	if err != nil {
		return err
	}

	_, err = corev1.NewServiceAccount(ctx, prefix+"-default-sa", &corev1.ServiceAccountArgs{
		Metadata: &metav1.ObjectMetaArgs{
			Name:      pulumi.String("default"),
			Namespace: namespace.Metadata.Name(),
		},
		ImagePullSecrets: corev1.LocalObjectReferenceArray{
			&corev1.LocalObjectReferenceArgs{Name: secret.Metadata.Name()},
		},
	}, pulumi.Provider(provider), pulumi.DependsOn([]pulumi.Resource{secret}))
	return err
}

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		s := loadSettings(ctx)

		vpc, err := digitalocean.NewVpc(ctx, prefix+"-vpc", &digitalocean.VpcArgs{
			Name:    pulumi.String(prefix + "-vpc"),
			Region:  pulumi.String(s.region),
			IpRange: pulumi.String("10.20.0.0/16"),
		})
		if err != nil {
			return err
		}

		cluster, err := digitalocean.NewKubernetesCluster(ctx, prefix+"-cluster", &digitalocean.KubernetesClusterArgs{
			Name:    pulumi.String(prefix + "-cluster"),
			Region:  pulumi.String(s.region),
			Version: pulumi.String("1.31.9-do.2"),
			VpcUuid: vpc.ID(),
			NodePool: &digitalocean.KubernetesClusterNodePoolArgs{
				Name:      pulumi.String("default"),
				Size:      pulumi.String(s.nodeSize),
				NodeCount: pulumi.Int(s.nodeCount),
			},
		})
		if err != nil {
			return err
		}

		stores, err := newDataStores(ctx, s, vpc)
		if err != nil {
			return err
		}

		provider, err := kubernetes.NewProvider(ctx, prefix+"-k8s", &kubernetes.ProviderArgs{
			Kubeconfig: cluster.KubeConfigs.Index(pulumi.Int(0)).RawConfig(),
		})
		if err != nil {
			return err
		}

		namespace, err := corev1.NewNamespace(ctx, prefix+"-namespace", &corev1.NamespaceArgs{
			Metadata: &metav1.ObjectMetaArgs{Name: pulumi.String(prefix)},
		}, pulumi.Provider(provider))
		if err != nil {
			return err
		}

		env, secrets := appEnvironment(s, stores)

		if _, err := corev1.NewConfigMap(ctx, prefix+"-config", &corev1.ConfigMapArgs{
			Metadata: &metav1.ObjectMetaArgs{
				Name:      pulumi.String(prefix + "-config"),
				Namespace: namespace.Metadata.Name(),
			},
			Data: env,
		}, pulumi.Provider(provider)); err != nil {
			return err
		}

		if _, err := corev1.NewSecret(ctx, prefix+"-secret", &corev1.SecretArgs{
			Metadata: &metav1.ObjectMetaArgs{
				Name:      pulumi.String(prefix + "-secret"),
				Namespace: namespace.Metadata.Name(),
			},
			StringData: secrets,
		}, pulumi.Provider(provider)); err != nil {
			return err
		}

		if err := registrySecret(ctx, config.New(ctx, ""), namespace, provider); err != nil {
			return err
		}

		ctx.Export("clusterName", cluster.Name)
		ctx.Export("kubeconfig", cluster.KubeConfigs.Index(pulumi.Int(0)).RawConfig())
		ctx.Export("databaseHost", stores.postgres.Host)
		ctx.Export("redisHost", stores.valkey.Host)
		if stores.kafka != nil {
			ctx.Export("kafkaHost", stores.kafka.Host)
		}

		return nil
	})
}
